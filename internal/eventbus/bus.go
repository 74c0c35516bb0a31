// Package eventbus routes session lifecycle and marketplace notifications
// to their handlers over a bounded worker pool. Dispatch is asynchronous:
// a slow handler delays other deliveries but never the publisher.
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType identifies a notification kind.
type EventType string

const (
	EventTypeSessionJoined  EventType = "session_joined"
	EventTypeSessionLeaving EventType = "session_leaving"
	EventTypePurchase       EventType = "purchase_completed"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 100
)

// Event is one notification. Session is always the session key the
// notification concerns; Data carries type-specific extras.
type Event struct {
	Type    EventType
	Session string
	Data    map[string]interface{}
}

// Handler consumes events for a subscribed type.
type Handler func(Event)

// delivery pairs an event with one of its subscribers.
type delivery struct {
	ev Event
	fn Handler
}

// Bus fans events out to subscribers through a fixed worker pool.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Handler

	queue chan delivery
	wg    sync.WaitGroup

	// closed via stopOnce; selecting on it keeps publish-after-close
	// race-free without holding the mutex
	stopping chan struct{}
	stopOnce sync.Once
}

// New creates a bus with default pool sizing.
func New() *Bus {
	return NewWithConfig(defaultWorkers, defaultQueueSize)
}

// NewWithConfig creates a bus with the given worker count and queue depth.
func NewWithConfig(workers, queueSize int) *Bus {
	b := &Bus{
		subs:     make(map[EventType][]Handler),
		queue:    make(chan delivery, queueSize),
		stopping: make(chan struct{}),
	}

	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.run(i)
	}

	log.Debug().Int("workers", workers).Int("queue_size", queueSize).Msg("Event bus started")
	return b
}

func (b *Bus) run(worker int) {
	defer b.wg.Done()

	for d := range b.queue {
		b.dispatch(worker, d)
	}
}

// dispatch invokes one handler, containing its panics. A panicking
// handler must not take the worker down with it.
func (b *Bus) dispatch(worker int, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", string(d.ev.Type)).
				Str("session", d.ev.Session).
				Int("worker", worker).
				Msg("Event handler panicked")
		}
	}()
	d.fn(d.ev)
}

// Subscribe registers a handler for an event type. Handlers registered
// after events were published do not see past events.
func (b *Bus) Subscribe(t EventType, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], fn)
}

// Publish queues the event for every subscriber of its type. It never
// blocks: with a full queue or a closing bus the event is dropped and
// logged.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subs[ev.Type]
	b.mu.RUnlock()

	for _, fn := range subs {
		select {
		case <-b.stopping:
			log.Warn().Str("event_type", string(ev.Type)).Msg("Event bus closing, dropping event")
			return
		case b.queue <- delivery{ev: ev, fn: fn}:
		default:
			log.Warn().
				Str("event_type", string(ev.Type)).
				Str("session", ev.Session).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// PublishSessionJoined announces a new session to subscribers.
func (b *Bus) PublishSessionJoined(session string, data map[string]interface{}) {
	b.Publish(Event{Type: EventTypeSessionJoined, Session: session, Data: data})
}

// PublishSessionLeaving announces session teardown. Subscribers must treat
// this as the single session-ending notification.
func (b *Bus) PublishSessionLeaving(session string) {
	b.Publish(Event{Type: EventTypeSessionLeaving, Session: session})
}

// Close drains the pool: publishers are cut off first, then queued
// deliveries run until the queue empties or ctx expires.
func (b *Bus) Close(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.stopping)
		close(b.queue)
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus drained")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, undelivered events lost")
	}
}
