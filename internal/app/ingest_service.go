package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/config"
	"github.com/dokzlo13/telemetryd/internal/ingest"
	"github.com/dokzlo13/telemetryd/internal/protocol"
	"github.com/dokzlo13/telemetryd/internal/remoteconfig"
	"github.com/dokzlo13/telemetryd/internal/session"
	"github.com/dokzlo13/telemetryd/internal/telemetry"
)

// IngestService runs the client-facing HTTP/WebSocket server.
type IngestService struct {
	cfg    *config.Config
	server *ingest.Server
}

// NewIngestService creates the ingest service. A nil remote-config client
// leaves the lookup route disabled.
func NewIngestService(cfg *config.Config, dispatcher *protocol.Dispatcher, tracker *session.Tracker, svc *telemetry.Service, rc *remoteconfig.Client) *IngestService {
	var configSource ingest.ConfigSource
	if rc != nil {
		configSource = rc
	}

	server := ingest.NewServer(
		cfg.Ingest.Host,
		cfg.Ingest.Port,
		dispatcher,
		tracker,
		svc,
		configSource,
		cfg.Ingest.AllowedOrigins,
	)
	return &IngestService{cfg: cfg, server: server}
}

// Start runs the server in a background goroutine. A listen failure is
// fatal for the whole process and is reported through onFatalError.
func (s *IngestService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		log.Info().
			Str("host", s.cfg.Ingest.Host).
			Int("port", s.cfg.Ingest.Port).
			Msg("Starting ingest server")

		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Ingest server failed")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
}
