package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/buffer"
	"github.com/dokzlo13/telemetryd/internal/config"
	"github.com/dokzlo13/telemetryd/internal/db"
	"github.com/dokzlo13/telemetryd/internal/eventbus"
	"github.com/dokzlo13/telemetryd/internal/journal"
	"github.com/dokzlo13/telemetryd/internal/kv"
	"github.com/dokzlo13/telemetryd/internal/marketplace"
	"github.com/dokzlo13/telemetryd/internal/protocol"
	"github.com/dokzlo13/telemetryd/internal/remoteconfig"
	"github.com/dokzlo13/telemetryd/internal/script"
	"github.com/dokzlo13/telemetryd/internal/session"
	"github.com/dokzlo13/telemetryd/internal/sink"
	"github.com/dokzlo13/telemetryd/internal/telemetry"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB  *db.DB
	Bus *eventbus.Bus

	// Telemetry pipeline
	Buffer      *buffer.Buffer
	Sinks       *sink.Multi
	Telemetry   *telemetry.Service
	Tracker     *session.Tracker
	Dispatcher  *protocol.Dispatcher
	Marketplace *marketplace.Listener

	// Glue around the pipeline
	Journal      *journal.Journal
	RemoteConfig *remoteconfig.Client
	Hook         *script.Runtime

	// High-level services
	Ingest     *IngestService
	JournalSvc *JournalService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Database is only needed by the journal and the remote-config cache.
	if cfg.Journal.Enabled || cfg.RemoteConfig.Enabled {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
	}

	// Telemetry backends
	var sinks []sink.Sink
	if cfg.Sinks.GameAnalytics.Enabled {
		ga := cfg.Sinks.GameAnalytics
		sinks = append(sinks, sink.NewGameAnalytics(
			ga.Endpoint, ga.GameKey, ga.SecretKey,
			ga.BatchSize, ga.BatchTimeout.Duration(), ga.Timeout.Duration(),
		))
	}
	if cfg.Sinks.PlayFab.Enabled {
		pf := cfg.Sinks.PlayFab
		sinks = append(sinks, sink.NewPlayFab(pf.Endpoint, pf.TitleID, pf.SecretKey, pf.Timeout.Duration()))
	}
	if cfg.Sinks.Stdout {
		sinks = append(sinks, sink.NewStdout())
	}
	s.Sinks = sink.NewMulti(sinks...)

	// Core pipeline
	s.Buffer = buffer.New()
	s.Telemetry = telemetry.NewService(s.Buffer, s.Sinks)

	if cfg.Journal.Enabled {
		s.Journal = journal.New(s.DB.DB)
		s.Telemetry.SetJournal(s.Journal)
	}

	if cfg.Script != "" {
		hook, err := script.Load(cfg.Script)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Hook = hook
		s.Telemetry.SetHook(hook)
	}

	s.Tracker = session.NewTracker(s.Bus)
	s.Dispatcher = protocol.NewDispatcher(s.Telemetry, s.Bus)
	s.Marketplace = marketplace.NewListener(s.Telemetry)

	if cfg.RemoteConfig.Enabled {
		cache := kv.NewSQLiteBucket(s.DB.DB, "remote_config")
		s.RemoteConfig = remoteconfig.NewClient(
			cfg.RemoteConfig.Endpoint, cache,
			cfg.RemoteConfig.TTL.Duration(), cfg.RemoteConfig.Timeout.Duration(),
		)
	}

	// High-level services
	s.Ingest = NewIngestService(cfg, s.Dispatcher, s.Tracker, s.Telemetry, s.RemoteConfig)
	s.JournalSvc = NewJournalService(cfg, s.Journal)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when the ingest server fails.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Bus.Subscribe(eventbus.EventTypeSessionJoined, func(e eventbus.Event) {
		log.Debug().Str("session", e.Session).Int("active", s.Tracker.Active()).Msg("Session count changed")
	})

	// Session teardown is the single session-ending notification: it
	// drives the forced full flush.
	s.Bus.Subscribe(eventbus.EventTypeSessionLeaving, func(e eventbus.Event) {
		if err := s.Telemetry.EndSession(e.Session); err != nil {
			log.Warn().Err(err).Str("session", e.Session).Msg("Session flush rejected")
		}
	})
	s.Marketplace.RegisterHandlers(s.Bus)

	s.Telemetry.Start()
	s.Ingest.Start(ctx, onFatalError)
	s.JournalSvc.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Telemetry != nil {
		s.Telemetry.Stop()
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Sinks != nil {
		s.Sinks.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Hook != nil {
		s.Hook.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func (s *Services) shutdownTimeout() time.Duration {
	if s.cfg != nil && s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout.Duration()
	}
	return 5 * time.Second
}
