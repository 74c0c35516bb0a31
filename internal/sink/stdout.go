package sink

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// Stdout is a debug sink that logs forwarded events instead of delivering
// them anywhere. Enabled alongside the real backends in debug mode.
type Stdout struct{}

// NewStdout creates the debug sink.
func NewStdout() *Stdout { return &Stdout{} }

// Name implements Sink.
func (s *Stdout) Name() string { return "stdout" }

// Send logs the event.
func (s *Stdout) Send(_ context.Context, session string, ev event.Event) error {
	log.Info().
		Str("session", session).
		Str("event", ev.FullName()).
		Str("category", string(ev.Kind)).
		Float64("value", ev.Value).
		Msg("Forwarded event")
	return nil
}

// Close is a no-op.
func (s *Stdout) Close() error { return nil }
