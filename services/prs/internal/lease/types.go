package lease

import (
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

// Table owns the slot array for one contiguous port range. All mutation
// happens inside Handle under mu.
type Table struct {
	clock    clock.Clock
	timeout  time.Duration
	observer Observer

	mu      sync.Mutex
	start   uint16
	slots   []slot
	byName  map[string]int
	stopped bool
}

// slot is the fixed-identity record for one port. serviceName and
// lastRenewedAt are only meaningful while available is false.
type slot struct {
	port          uint16
	available     bool
	serviceName   string
	lastRenewedAt time.Time
}

// Lease is a read-only copy of one slot.
type Lease struct {
	Port          uint16    `json:"port" yaml:"port"`
	Available     bool      `json:"available" yaml:"available"`
	ServiceName   string    `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	LastRenewedAt time.Time `json:"last_renewed_at,omitzero" yaml:"last_renewed_at,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
}

type EventType string

const (
	EventAllocated EventType = "allocated"
	EventRenewed   EventType = "renewed"
	EventReleased  EventType = "released"
	EventExpired   EventType = "expired"
	EventStopped   EventType = "stopped"
)

// Event describes one state transition of a slot, or of the table itself
// for EventStopped.
type Event struct {
	Type        EventType
	ServiceName string
	Port        uint16
	At          time.Time
}

// Observer receives events after the table lock has been released.
type Observer interface {
	LeaseEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) LeaseEvent(e Event) { f(e) }

// Option configures a Table.
type Option func(*Table)
