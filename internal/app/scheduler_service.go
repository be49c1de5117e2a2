package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightseq/internal/config"
	"github.com/dokzlo13/lightseq/internal/eventbus"
	"github.com/dokzlo13/lightseq/internal/ledger"
	"github.com/dokzlo13/lightseq/internal/pattern"
	"github.com/dokzlo13/lightseq/internal/scheduler"
)

// SchedulerService wraps the pattern scheduler and related periodic tasks.
type SchedulerService struct {
	cfg       *config.Config
	Scheduler *scheduler.Scheduler
	library   *pattern.Library
	ledger    *ledger.Ledger
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(
	cfg *config.Config,
	devices scheduler.Devices,
	library *pattern.Library,
	l *ledger.Ledger,
	bus *eventbus.Bus,
) *SchedulerService {
	sched := scheduler.New(devices, scheduler.Options{
		IdlePass: cfg.Scheduler.IdlePass.Duration(),
		Ledger:   l,
		Bus:      bus,
	})
	return &SchedulerService{
		cfg:       cfg,
		Scheduler: sched,
		library:   library,
		ledger:    l,
	}
}

// Start begins ledger cleanup and starts the autostart pattern, if any.
func (s *SchedulerService) Start(ctx context.Context) error {
	go s.runLedgerCleanup(ctx)

	name := s.cfg.Patterns.Autostart
	if name == "" {
		return nil
	}
	p, ok := s.library.Get(name)
	if !ok {
		return fmt.Errorf("autostart pattern %q not found in %s", name, s.library.Dir())
	}
	_, err := s.Scheduler.Start(ctx, p)
	return err
}

// Stop stops the active pattern, waiting until ctx ends for in-flight calls.
func (s *SchedulerService) Stop(ctx context.Context) error {
	return s.Scheduler.Stop(ctx)
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *SchedulerService) runLedgerCleanup(ctx context.Context) {
	retention := time.Duration(s.cfg.Ledger.RetentionDays) * 24 * time.Hour
	interval := s.cfg.Ledger.CleanupInterval.Duration()
	if retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}
