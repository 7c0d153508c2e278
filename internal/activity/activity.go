// Package activity records structured pipeline events for observability and
// notification consumers.
package activity

import (
	"context"
	"log/slog"

	"backlinks/internal/clock"
	"backlinks/internal/models"
)

// Store persists activity events.
type Store interface {
	InsertActivity(ctx context.Context, e *models.ActivityEvent) error
}

// Recorder writes events to the activity log and to the structured logger.
// Events are fire-and-forget: persistence errors are logged, never returned.
type Recorder struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil store only logs.
func NewRecorder(store Store, clk clock.Clock, logger *slog.Logger) *Recorder {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, clock: clk, logger: logger}
}

// Record stores and logs e.
func (r *Recorder) Record(ctx context.Context, e models.ActivityEvent) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}

	attrs := []any{"event", e.Event}
	if e.RunID != nil {
		attrs = append(attrs, "run_id", *e.RunID)
	}
	if e.DomainID != nil {
		attrs = append(attrs, "domain_id", *e.DomainID)
	}
	if e.UserID != nil {
		attrs = append(attrs, "user_id", *e.UserID)
	}
	level := slog.LevelInfo
	if e.Event == models.EventRunFailed {
		level = slog.LevelError
	}
	r.logger.Log(ctx, level, e.Message, attrs...)

	if r.store == nil {
		return
	}
	if err := r.store.InsertActivity(ctx, &e); err != nil {
		r.logger.Error("failed to record activity", "event", e.Event, "error", err)
	}
}
