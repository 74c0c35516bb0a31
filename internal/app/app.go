// Package app wires the daemon together: config in, services constructed
// with explicit dependencies, one lifecycle from Start to Stop.
package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/config"
)

// App owns the service container and the run context.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New constructs every service without starting anything.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Start brings the services up. A fatal error in any of them cancels the
// run context, which unblocks Wait.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	onFatalError := func(err error) {
		log.Error().Err(err).Msg("Fatal error, initiating shutdown")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, onFatalError); err != nil {
		return err
	}

	log.Info().Msg("Telemetryd started")
	return nil
}

// Wait blocks until the run context ends, either by signal or by a fatal
// service error.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// Stop tears the services down. Pending session flushes complete before
// the sinks close.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		return a.services.Stop()
	}
	return nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}
