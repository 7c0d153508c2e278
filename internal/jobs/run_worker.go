package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"backlinks/internal/models"
	"backlinks/internal/pipeline"
	"backlinks/internal/provider"
)

// RunClaimer hands out pending runs to workers.
type RunClaimer interface {
	// ClaimPendingRun returns the oldest pending run not claimed within
	// lease, or nil when there is none.
	ClaimPendingRun(ctx context.Context, lease time.Duration) (*models.Run, error)
	// FailStaleRuns fails runs left running for longer than olderThan.
	FailStaleRuns(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)
}

// Executor runs one backlink run to completion.
type Executor interface {
	Execute(ctx context.Context, runID uuid.UUID) (*models.Run, error)
}

// WorkerConfig tunes a RunWorker.
type WorkerConfig struct {
	Interval    time.Duration
	Concurrency int
	RunTimeout  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	// StaleAfter is how long a run may stay running before it is treated as
	// abandoned. Defaults to twice RunTimeout.
	StaleAfter time.Duration
}

// RunWorker polls for pending runs and executes them.
type RunWorker struct {
	store  RunClaimer
	exec   Executor
	cfg    WorkerConfig
	logger *slog.Logger
}

// NewRunWorker creates a worker.
func NewRunWorker(store RunClaimer, exec Executor, cfg WorkerConfig, logger *slog.Logger) *RunWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.RunTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunWorker{store: store, exec: exec, cfg: cfg, logger: logger}
}

// Start runs the polling loop until ctx is cancelled.
func (w *RunWorker) Start(ctx context.Context) {
	w.logger.Info("run worker started",
		"interval", w.cfg.Interval,
		"concurrency", w.cfg.Concurrency,
		"run_timeout", w.cfg.RunTimeout,
	)

	w.Drain(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("run worker stopped")
			return
		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain fails abandoned runs, then claims and executes pending runs until none
// are left, with at most Concurrency runs in flight. It returns the number of
// runs it picked up.
func (w *RunWorker) Drain(ctx context.Context) int {
	w.FailStale(ctx)

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)

	claimed := 0
	for ctx.Err() == nil {
		run, err := w.store.ClaimPendingRun(ctx, w.cfg.RunTimeout)
		if err != nil {
			w.logger.Error("failed to claim run", "error", err)
			break
		}
		if run == nil {
			break
		}
		claimed++
		id := run.ID
		g.Go(func() error {
			w.process(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return claimed
}

// FailStale fails runs that stayed running past StaleAfter, which happens when
// the process executing them died. It returns how many runs it failed.
func (w *RunWorker) FailStale(ctx context.Context) int {
	ids, err := w.store.FailStaleRuns(ctx, w.cfg.StaleAfter)
	if err != nil {
		w.logger.Error("failed to fail stale runs", "error", err)
		return 0
	}
	for _, id := range ids {
		w.logger.Warn("failed abandoned run", "run_id", id, "stale_after", w.cfg.StaleAfter)
	}
	return len(ids)
}

// process executes a run, retrying failed executions up to MaxAttempts.
func (w *RunWorker) process(ctx context.Context, runID uuid.UUID) {
	for attempt := 1; ; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
		run, err := w.exec.Execute(runCtx, runID)
		cancel()

		if err == nil {
			w.logger.Info("run completed", "run_id", runID, "attempt", attempt, "duration", run.Duration())
			return
		}
		if !retryable(err) {
			w.logger.Warn("run not retried", "run_id", runID, "error", err)
			return
		}
		if attempt >= w.cfg.MaxAttempts || ctx.Err() != nil {
			w.logger.Error("run failed", "run_id", runID, "attempts", attempt, "error", err)
			return
		}

		w.logger.Warn("run failed, retrying", "run_id", runID, "attempt", attempt, "error", err)
		if err := sleep(ctx, w.cfg.RetryDelay); err != nil {
			return
		}
	}
}

// retryable reports whether another execution could succeed.
func retryable(err error) bool {
	switch {
	case errors.Is(err, pipeline.ErrRunNotRunnable),
		errors.Is(err, pipeline.ErrMissingHost),
		errors.Is(err, provider.ErrMissingCredentials),
		errors.Is(err, provider.ErrUnknownProvider):
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
