// Package buffer holds per-session telemetry pending delivery.
// It is the in-memory backing of the flush protocol: delayed events queue
// up in insertion order, tracked values accumulate by name, and both are
// handed out exactly once by the drain operations.
package buffer

import (
	"sync"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// Buffer keeps pending state per session key. A session appears in neither
// map once fully drained - empty entries are removed eagerly.
type Buffer struct {
	mu      sync.Mutex
	delayed map[string][]event.Event
	tracked map[string]map[string]float64
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{
		delayed: make(map[string][]event.Event),
		tracked: make(map[string]map[string]float64),
	}
}

// AddDelayed appends ev to the session's pending list. Repeated events with
// the same name are kept as separate entries, flushed FIFO.
func (b *Buffer) AddDelayed(session string, ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.delayed[session] = append(b.delayed[session], ev)
}

// AddTracked adds value to the named counter for the session, initializing
// the counter at zero on first use.
func (b *Buffer) AddTracked(session, name string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counters, ok := b.tracked[session]
	if !ok {
		counters = make(map[string]float64)
		b.tracked[session] = counters
	}
	counters[name] += value
}

// DrainSession removes and returns everything pending for the session:
// the delayed events in insertion order and the accumulated counters.
// Draining a session with nothing pending returns nil, nil.
func (b *Buffer) DrainSession(session string) ([]event.Event, map[string]float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.delayed[session]
	counters := b.tracked[session]
	delete(b.delayed, session)
	delete(b.tracked, session)

	return events, counters
}

// TakeNamed removes the first pending delayed event with the given name
// (one entry per call, FIFO by list position) and the whole tracked counter
// for that name. Both checks run on every call; either may hit
// independently. Absence of both is not an error.
func (b *Buffer) TakeNamed(session, name string) (delayed *event.Event, counter float64, hasCounter bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if list, ok := b.delayed[session]; ok {
		for i := range list {
			if list[i].Name != name {
				continue
			}
			ev := list[i]
			list = append(list[:i], list[i+1:]...)
			if len(list) == 0 {
				delete(b.delayed, session)
			} else {
				b.delayed[session] = list
			}
			delayed = &ev
			break
		}
	}

	if counters, ok := b.tracked[session]; ok {
		if value, exists := counters[name]; exists {
			delete(counters, name)
			if len(counters) == 0 {
				delete(b.tracked, session)
			}
			counter = value
			hasCounter = true
		}
	}

	return delayed, counter, hasCounter
}

// PendingDelayed returns the number of queued delayed events for the session.
func (b *Buffer) PendingDelayed(session string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.delayed[session])
}

// PendingTracked returns the number of active counters for the session.
func (b *Buffer) PendingTracked(session string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tracked[session])
}

// Sessions returns the number of distinct session keys with pending state.
func (b *Buffer) Sessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make(map[string]struct{}, len(b.delayed)+len(b.tracked))
	for k := range b.delayed {
		keys[k] = struct{}{}
	}
	for k := range b.tracked {
		keys[k] = struct{}{}
	}
	return len(keys)
}
