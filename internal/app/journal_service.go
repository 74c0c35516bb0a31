package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/config"
	"github.com/dokzlo13/telemetryd/internal/journal"
)

// JournalService periodically prunes old delivery journal entries.
type JournalService struct {
	cfg     *config.Config
	journal *journal.Journal
}

// NewJournalService creates the journal cleanup service.
func NewJournalService(cfg *config.Config, j *journal.Journal) *JournalService {
	return &JournalService{cfg: cfg, journal: j}
}

// Start runs the cleanup loop. It is a no-op when the journal is disabled.
func (s *JournalService) Start(ctx context.Context) {
	if s.journal == nil {
		return
	}

	go func() {
		interval := s.cfg.Journal.CleanupInterval.Duration()
		retention := time.Duration(s.cfg.Journal.RetentionDays) * 24 * time.Hour

		// Prune once on startup, then on the interval.
		s.cleanup(retention)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanup(retention)
			}
		}
	}()
}

func (s *JournalService) cleanup(retention time.Duration) {
	removed, err := s.journal.DeleteOlderThan(retention)
	if err != nil {
		log.Warn().Err(err).Msg("Journal cleanup failed")
		return
	}
	if removed > 0 {
		log.Debug().Int64("removed", removed).Msg("Pruned old journal entries")
	}
}
