package audit

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCriticalWait bounds how long a critical event waits for buffer space
// when DropIfFull is set.
const DefaultCriticalWait = 50 * time.Millisecond

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// CriticalWait is how long events for which Critical reports true may wait
	// for space before being dropped. Zero uses DefaultCriticalWait; negative
	// drops them immediately like any other event.
	CriticalWait time.Duration
}

// Critical reports whether losing an event of this type hides an attack or an
// outage: refresh reuse, logout-all, and store outages.
func Critical(eventType string) bool {
	switch eventType {
	case EventRefreshReuseDetected, EventLogoutAll, EventStoreUnavailable:
		return true
	}
	return false
}

// Dispatcher hands audit events to a sink on a single goroutine, preserving
// emission order. Drops are counted per event type.
type Dispatcher struct {
	sink         Sink
	dropIfFull   bool
	criticalWait time.Duration

	// mu orders sends against Close so that no send hits a closed channel.
	mu     sync.RWMutex
	closed bool
	events chan Event
	wg     sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64

	dropsMu sync.Mutex
	drops   map[string]uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg.Enabled is false.
// All methods accept a nil receiver.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	buffer := max(cfg.BufferSize, 1)
	wait := cfg.CriticalWait
	if wait == 0 {
		wait = DefaultCriticalWait
	}

	d := &Dispatcher{
		sink:         sink,
		dropIfFull:   cfg.DropIfFull,
		criticalWait: wait,
		events:       make(chan Event, buffer),
		drops:        map[string]uint64{},
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.events {
			d.sink.Emit(context.Background(), event)
			d.delivered.Add(1)
		}
	}()
	return d
}

// Emit queues event for delivery. Events without a timestamp are stamped here.
//
// With DropIfFull unset Emit waits for space until ctx is done. With it set,
// ordinary events are dropped at once when the buffer is full and critical
// events wait up to CriticalWait first.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.events <- event:
		return
	default:
	}

	var deadline <-chan time.Time
	switch {
	case !d.dropIfFull:
	case Critical(event.EventType) && d.criticalWait > 0:
		timer := time.NewTimer(d.criticalWait)
		defer timer.Stop()
		deadline = timer.C
	default:
		d.drop(event.EventType)
		return
	}

	select {
	case d.events <- event:
	case <-deadline:
		d.drop(event.EventType)
	case <-ctx.Done():
		d.drop(event.EventType)
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.dropsMu.Lock()
	d.drops[eventType]++
	d.dropsMu.Unlock()
}

// Close stops accepting events and returns once the buffer has drained into
// the sink. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped returns the total number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType returns drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return map[string]uint64{}
	}
	d.dropsMu.Lock()
	defer d.dropsMu.Unlock()
	return maps.Clone(d.drops)
}

// Delivered returns how many events reached the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
