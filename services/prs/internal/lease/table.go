package lease

import (
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"

	"prsd/pkg/prsproto"
)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(t *Table) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithObserver registers the receiver of lease events. Use Observers to fan out.
func WithObserver(o Observer) Option {
	return func(t *Table) {
		t.observer = o
	}
}

// NewTable creates one free slot per port in [start, end].
func NewTable(start, end uint16, timeout time.Duration, opts ...Option) (*Table, error) {
	if start == 0 {
		return nil, errors.New("starting port must be non-zero")
	}
	if end < start {
		return nil, fmt.Errorf("ending port %d is below starting port %d", end, start)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("keep-alive timeout must be positive, got %s", timeout)
	}

	t := &Table{
		clock:   clock.NewClock(),
		timeout: timeout,
		start:   start,
		slots:   make([]slot, int(end)-int(start)+1),
		byName:  make(map[string]int),
	}
	for i := range t.slots {
		t.slots[i] = slot{port: start + uint16(i), available: true}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Handle sweeps expired leases and answers msg. Every call yields exactly one
// RESPONSE; business outcomes are carried in its status.
func (t *Table) Handle(msg prsproto.Message) prsproto.Message {
	t.mu.Lock()
	now := t.clock.Now()
	events := t.sweep(now, nil)

	var resp prsproto.Message
	switch msg.Type {
	case prsproto.RequestPort:
		resp, events = t.requestPort(msg.ServiceName, now, events)
	case prsproto.KeepAlive:
		resp, events = t.keepAlive(msg.ServiceName, msg.Port, now, events)
	case prsproto.ClosePort:
		resp, events = t.closePort(msg.ServiceName, msg.Port, now, events)
	case prsproto.LookupPort:
		resp = t.lookupPort(msg.ServiceName, msg.Port)
	case prsproto.Stop:
		t.stopped = true
		events = append(events, Event{Type: EventStopped, ServiceName: msg.ServiceName, Port: msg.Port, At: now})
		resp = prsproto.NewResponse(msg.ServiceName, msg.Port, prsproto.Success)
	default:
		resp = prsproto.NewResponse(msg.ServiceName, msg.Port, prsproto.UndefinedError)
	}
	t.mu.Unlock()

	t.notify(events)
	return resp
}

// Stopped reports whether a STOP request has been handled.
func (t *Table) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Timeout returns the keep-alive window.
func (t *Table) Timeout() time.Duration { return t.timeout }

// Range returns the inclusive port range managed by the table.
func (t *Table) Range() (uint16, uint16) {
	return t.start, t.start + uint16(len(t.slots)-1)
}

// Snapshot copies every slot in ascending port order. It does not sweep, so
// a lease past its deadline is still reported until the next request.
func (t *Table) Snapshot() []Lease {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Lease, len(t.slots))
	for i := range t.slots {
		out[i] = t.view(&t.slots[i])
	}
	return out
}

// Lookup returns the active lease held under name.
func (t *Table) Lookup(name string) (Lease, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx, ok := t.byName[name]
	if !ok {
		return Lease{}, false
	}
	return t.view(&t.slots[idx]), true
}

// Active counts leased slots.
func (t *Table) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byName)
}

func (t *Table) view(s *slot) Lease {
	l := Lease{Port: s.port, Available: s.available}
	if !s.available {
		l.ServiceName = s.serviceName
		l.LastRenewedAt = s.lastRenewedAt
		l.ExpiresAt = s.lastRenewedAt.Add(t.timeout)
	}
	return l
}

func (t *Table) sweep(now time.Time, events []Event) []Event {
	for i := range t.slots {
		s := &t.slots[i]
		if s.available || !now.After(s.lastRenewedAt.Add(t.timeout)) {
			continue
		}
		events = append(events, Event{Type: EventExpired, ServiceName: s.serviceName, Port: s.port, At: now})
		t.free(i)
	}
	return events
}

func (t *Table) requestPort(name string, now time.Time, events []Event) (prsproto.Message, []Event) {
	if _, held := t.byName[name]; held {
		return prsproto.NewResponse(name, 0, prsproto.ServiceInUse), events
	}

	for i := range t.slots {
		s := &t.slots[i]
		if !s.available {
			continue
		}
		s.available = false
		s.serviceName = name
		s.lastRenewedAt = now
		t.byName[name] = i
		events = append(events, Event{Type: EventAllocated, ServiceName: name, Port: s.port, At: now})
		return prsproto.NewResponse(name, s.port, prsproto.Success), events
	}

	return prsproto.NewResponse(name, 0, prsproto.AllPortsBusy), events
}

func (t *Table) keepAlive(name string, port uint16, now time.Time, events []Event) (prsproto.Message, []Event) {
	idx, ok := t.held(name, port)
	if !ok {
		return prsproto.NewResponse(name, port, prsproto.ServiceNotFound), events
	}
	t.slots[idx].lastRenewedAt = now
	events = append(events, Event{Type: EventRenewed, ServiceName: name, Port: port, At: now})
	return prsproto.NewResponse(name, port, prsproto.Success), events
}

func (t *Table) closePort(name string, port uint16, now time.Time, events []Event) (prsproto.Message, []Event) {
	idx, ok := t.held(name, port)
	if !ok {
		return prsproto.NewResponse(name, port, prsproto.ServiceNotFound), events
	}
	t.free(idx)
	events = append(events, Event{Type: EventReleased, ServiceName: name, Port: port, At: now})
	return prsproto.NewResponse(name, port, prsproto.Success), events
}

// lookupPort echoes the requested port on a miss rather than forcing 0.
func (t *Table) lookupPort(name string, port uint16) prsproto.Message {
	idx, ok := t.byName[name]
	if !ok {
		return prsproto.NewResponse(name, port, prsproto.ServiceNotFound)
	}
	return prsproto.NewResponse(name, t.slots[idx].port, prsproto.Success)
}

// held finds the leased slot whose current holder matches both name and port.
func (t *Table) held(name string, port uint16) (int, bool) {
	idx, ok := t.byName[name]
	if !ok || t.slots[idx].port != port {
		return 0, false
	}
	return idx, true
}

func (t *Table) free(idx int) {
	s := &t.slots[idx]
	delete(t.byName, s.serviceName)
	s.available = true
	s.serviceName = ""
	s.lastRenewedAt = time.Time{}
}

func (t *Table) notify(events []Event) {
	if t.observer == nil {
		return
	}
	for _, e := range events {
		t.observer.LeaseEvent(e)
	}
}
