// Package sink contains the telemetry backends events are forwarded to.
// Sink failures never escalate past this package: the fan-out logs them
// and reports success to the flush path, which has already removed the
// events from the buffer.
package sink

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// Sink is a single telemetry backend.
type Sink interface {
	// Name returns the backend identifier used in logs and the journal.
	Name() string

	// Send delivers one event for the given session key. Implementations
	// may deliver asynchronously; an error means the event was not accepted.
	Send(ctx context.Context, session string, ev event.Event) error

	// Close flushes any internal buffering and releases resources.
	Close() error
}

// Multi fans an event out to every configured backend. It is the error
// boundary: per-sink failures are logged and swallowed.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out over the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// Send forwards the event to every sink. Always returns nil.
func (m *Multi) Send(ctx context.Context, session string, ev event.Event) error {
	for _, s := range m.sinks {
		if err := s.Send(ctx, session, ev); err != nil {
			log.Warn().
				Err(err).
				Str("sink", s.Name()).
				Str("session", session).
				Str("event", ev.FullName()).
				Msg("Sink rejected event")
		}
	}
	return nil
}

// Close closes all sinks, logging individual failures.
func (m *Multi) Close() error {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("Sink close failed")
		}
	}
	return nil
}
