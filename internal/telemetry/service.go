// Package telemetry implements the validation gate and the flush protocol
// on top of the session buffer. Forwarding to the sinks is fire-and-forget:
// buffer removal happens synchronously with the flush call and is never
// rolled back on delivery failure.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/buffer"
	"github.com/dokzlo13/telemetryd/internal/event"
	"github.com/dokzlo13/telemetryd/internal/sink"
)

// DefaultValue is used when a caller omits the event value.
const DefaultValue = 1

// Rejection reasons surfaced by the validation gate. These are result
// values, never fatal; the caller decides whether to log them.
var (
	ErrNotStarted     = errors.New("not started")
	ErrInvalidData    = errors.New("invalid data")
	ErrEventRequired  = errors.New("event is required")
	ErrEventType      = errors.New("event must be a string")
	ErrValueRequired  = errors.New("value is required")
	ErrPlayerRequired = errors.New("player is required")
)

// Hook can rewrite or drop an event right before it is forwarded.
// Returning false drops the event.
type Hook interface {
	OnEvent(session string, ev event.Event) (event.Event, bool)
}

// Journal records forwarded events for auditing. Optional.
type Journal interface {
	RecordForwarded(session string, ev event.Event)
}

// Service owns the buffer and enforces the gate-then-mutate order: no
// buffer state changes unless validation passed.
type Service struct {
	started atomic.Bool
	buf     *buffer.Buffer
	sinks   sink.Sink
	hook    Hook
	journal Journal
	wg      sync.WaitGroup
}

// NewService creates the telemetry service. It is not accepting events
// until Start is called.
func NewService(buf *buffer.Buffer, sinks sink.Sink) *Service {
	return &Service{
		buf:   buf,
		sinks: sinks,
	}
}

// SetHook configures the optional event hook. Must be called before Start.
func (s *Service) SetHook(hook Hook) {
	s.hook = hook
}

// SetJournal configures the optional delivery journal. Must be called
// before Start.
func (s *Service) SetJournal(journal Journal) {
	s.journal = journal
}

// Start flips the readiness flag; events are rejected until then.
func (s *Service) Start() {
	s.started.Store(true)
	log.Info().Msg("Telemetry accepting events")
}

// Stop stops accepting events and waits for in-flight forwards.
func (s *Service) Stop() {
	s.started.Store(false)
	s.wg.Wait()
}

// Ready reports whether the service accepts events.
func (s *Service) Ready() bool {
	return s.started.Load()
}

// Record validates and forwards an event immediately, without buffering.
func (s *Service) Record(session, name string, value float64, fields ...string) error {
	if err := s.validate(session, name); err != nil {
		return err
	}
	s.forward(session, []event.Event{s.newEvent(event.KindDesign, name, value, fields)})
	return nil
}

// RecordBusiness validates and forwards a business event immediately.
// Business events are never buffered.
func (s *Service) RecordBusiness(session, name string, value float64, fields ...string) error {
	if err := s.validate(session, name); err != nil {
		return err
	}
	s.forward(session, []event.Event{s.newEvent(event.KindBusiness, name, value, fields)})
	return nil
}

// RecordDelayed validates and appends an event to the session's queue.
// It is forwarded on FlushNamed or EndSession, FIFO within the session.
func (s *Service) RecordDelayed(session, name string, value float64, fields ...string) error {
	if err := s.validate(session, name); err != nil {
		return err
	}
	s.buf.AddDelayed(session, s.newEvent(event.KindDesign, name, value, fields))
	return nil
}

// AddTracked validates and accumulates value into the session's named
// counter, delivered as one event at flush.
func (s *Service) AddTracked(session, name string, value float64) error {
	if err := s.validate(session, name); err != nil {
		return err
	}
	s.buf.AddTracked(session, name, value)
	return nil
}

// FlushNamed forwards and removes the first queued delayed event with the
// given name and the whole tracked counter for that name. Both checks run
// on every call. Nothing matching is not an error.
func (s *Service) FlushNamed(session, name string) error {
	if err := s.validate(session, name); err != nil {
		return err
	}

	var out []event.Event
	delayed, counter, hasCounter := s.buf.TakeNamed(session, name)
	if delayed != nil {
		out = append(out, *delayed)
	}
	if hasCounter {
		out = append(out, s.newEvent(event.KindDesign, name, counter, nil))
	}
	if len(out) > 0 {
		s.forward(session, out)
	}
	return nil
}

// EndSession drains everything pending for the session: delayed events in
// insertion order, then the accumulated counters. Calling it again for the
// same session is a no-op.
func (s *Service) EndSession(session string) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if session == "" {
		return ErrPlayerRequired
	}

	events, counters := s.buf.DrainSession(session)
	out := events
	for name, value := range counters {
		out = append(out, s.newEvent(event.KindDesign, name, value, nil))
	}
	if len(out) > 0 {
		log.Debug().Str("session", session).Int("events", len(out)).Msg("Flushing session")
		s.forward(session, out)
	}
	return nil
}

func (s *Service) validate(session, name string) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if name == "" {
		return ErrEventRequired
	}
	if session == "" {
		return ErrPlayerRequired
	}
	return nil
}

func (s *Service) newEvent(kind event.Kind, name string, value float64, fields []string) event.Event {
	return event.Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Name:   name,
		Value:  value,
		Fields: fields,
		At:     time.Now(),
	}
}

// forward delivers events to the sinks in the background. Failures and
// panics are captured here; they never reach the flush path, which has
// already removed the events from the buffer. Order is preserved within
// one call; separate flushes for the same session run on independent
// goroutines and may interleave.
func (s *Service) forward(session string, events []event.Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("session", session).
					Msg("Telemetry forwarding panicked")
			}
		}()

		ctx := context.Background()
		for _, ev := range events {
			out := ev
			if s.hook != nil {
				rewritten, keep := s.hook.OnEvent(session, ev)
				if !keep {
					log.Debug().Str("session", session).Str("event", ev.FullName()).Msg("Event dropped by hook")
					continue
				}
				out = rewritten
			}
			if err := s.sinks.Send(ctx, session, out); err != nil {
				log.Warn().
					Err(err).
					Str("session", session).
					Str("event", out.FullName()).
					Msg("Failed to forward event")
			}
			if s.journal != nil {
				s.journal.RecordForwarded(session, out)
			}
		}
	}()
}
