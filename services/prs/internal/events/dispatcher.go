package events

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"prsd/services/prs/internal/lease"
)

const deliverTimeout = 5 * time.Second

// Record is the serialised form of a lease event shared by every sink.
type Record struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Instance    uuid.UUID       `json:"instance" db:"instance"`
	Type        lease.EventType `json:"type" db:"type"`
	ServiceName string          `json:"service_name" db:"service_name"`
	Port        uint16          `json:"port" db:"port"`
	At          time.Time       `json:"at" db:"at"`
}

// Sink is a destination for records, such as the bus or the journal.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec Record) error
}

// Dispatcher queues lease events and hands them to sinks on its own
// goroutine. LeaseEvent never blocks: when the queue is full the event is
// dropped and counted.
type Dispatcher struct {
	instance uuid.UUID
	sinks    []Sink
	logger   *log.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan lease.Event

	dropped atomic.Uint64
	wg      sync.WaitGroup
}

func NewDispatcher(buffer int, logger *log.Logger, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		instance: uuid.New(),
		sinks:    sinks,
		logger:   logger,
		queue:    make(chan lease.Event, buffer),
	}
}

// Instance identifies this process in every record it emits.
func (d *Dispatcher) Instance() uuid.UUID { return d.instance }

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Start delivers queued events until Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range d.queue {
			d.deliver(ctx, e)
		}
	}()
}

func (d *Dispatcher) LeaseEvent(e lease.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.logger.Printf("WARN event queue full, dropping %s event for %q on port %d", e.Type, e.ServiceName, e.Port)
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, e lease.Event) {
	rec := Record{
		ID:          uuid.New(),
		Instance:    d.instance,
		Type:        e.Type,
		ServiceName: e.ServiceName,
		Port:        e.Port,
		At:          e.At.UTC(),
	}
	for _, sink := range d.sinks {
		sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
		err := sink.Deliver(sinkCtx, rec)
		cancel()
		if err != nil {
			d.logger.Printf("ERROR deliver %s event to %s: %v", rec.Type, sink.Name(), err)
		}
	}
}
