package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"backlinks/internal/db"
	"backlinks/internal/models"
)

// ScheduleStore is the persistence the scheduler needs.
type ScheduleStore interface {
	// ListSchedulableDomains returns enabled domains with no pending or
	// running run.
	ListSchedulableDomains(ctx context.Context) ([]models.Domain, error)
	EnqueueRun(ctx context.Context, domainID uuid.UUID, provider string, settings models.RunSettings) (*models.Run, error)
}

// Scheduler periodically enqueues a run for every enabled domain that has
// none in flight.
type Scheduler struct {
	store    ScheduleStore
	schedule string
	provider string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewScheduler creates a scheduler firing on schedule, a five-field cron
// expression or a descriptor such as "@daily".
func NewScheduler(store ScheduleStore, schedule, providerName string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		store:    store,
		schedule: schedule,
		provider: providerName,
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		logger:   logger,
	}, nil
}

// Start runs the schedule until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.EnqueueDue(ctx); err != nil {
			s.logger.Error("scheduled enqueue failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("adding schedule: %w", err)
	}

	s.logger.Info("scheduler started", "schedule", s.schedule)
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// EnqueueDue enqueues one run per schedulable domain using the domain's
// settings. Domains that gained an active run in the meantime are skipped.
func (s *Scheduler) EnqueueDue(ctx context.Context) (int, error) {
	domains, err := s.store.ListSchedulableDomains(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing domains: %w", err)
	}

	enqueued := 0
	for _, d := range domains {
		run, err := s.store.EnqueueRun(ctx, d.ID, s.provider, d.Settings)
		switch {
		case errors.Is(err, db.ErrActiveRunExists):
			continue
		case err != nil:
			s.logger.Error("failed to enqueue run", "domain_id", d.ID, "error", err)
			continue
		}
		enqueued++
		s.logger.Info("run enqueued", "run_id", run.ID, "domain_id", d.ID, "host", d.Host)
	}
	return enqueued, nil
}
