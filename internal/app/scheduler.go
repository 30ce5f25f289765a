/**
 * @description
 * Cron scheduler for housekeeping jobs. The only job today purges webhook
 * event claims whose retention window has passed.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	dedupe   EventDeduplicator
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(dedupe EventDeduplicator, schedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		dedupe:   dedupe,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.PurgeProcessedEvents); err != nil {
		s.logger.Error("failed to schedule processed event purge job", "error", err)
		return err
	}
	s.logger.Info("scheduled processed event purge job", "schedule", s.schedule)

	s.cron.Start()
	return nil
}

// PurgeProcessedEvents drops expired webhook event claims.
func (s *Scheduler) PurgeProcessedEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := s.dedupe.Purge(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to purge processed events", "error", err)
		return
	}
	s.logger.Info("processed event purge job finished", "purged", purged)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
