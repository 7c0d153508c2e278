// Package quota meters usage against per-user monthly limits.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// MetricBacklinksLinks counts backlinks fetched by completed runs.
const MetricBacklinksLinks = "backlinks.links"

// Store persists usage counters.
type Store interface {
	AddUsage(ctx context.Context, userID uuid.UUID, metricKey, period string, amount int64) (int64, error)
	GetUsage(ctx context.Context, userID uuid.UUID, metricKey, period string) (int64, error)
}

// Service records usage. The limit is soft: going over it is logged, never
// refused.
type Service struct {
	store        Store
	monthlyLimit int64
	logger       *slog.Logger
}

// NewService creates a quota service. A monthlyLimit <= 0 disables the
// over-limit warning.
func NewService(store Store, monthlyLimit int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, monthlyLimit: monthlyLimit, logger: logger}
}

// Period returns the monthly usage period containing t, e.g. "2025-03".
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Consume adds amount to the user's counter for metricKey in period.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, metricKey string, amount int64, period string, meta map[string]any) error {
	if amount <= 0 {
		return nil
	}

	total, err := s.store.AddUsage(ctx, userID, metricKey, period, amount)
	if err != nil {
		return fmt.Errorf("recording %s usage: %w", metricKey, err)
	}

	if s.monthlyLimit > 0 && total > s.monthlyLimit {
		s.logger.Warn("usage over monthly limit",
			"user_id", userID,
			"metric", metricKey,
			"period", period,
			"total", total,
			"limit", s.monthlyLimit,
			"context", meta,
		)
	}
	return nil
}

// Usage is a user's consumption of one metric in one period.
type Usage struct {
	UserID    uuid.UUID `json:"user_id"`
	Metric    string    `json:"metric"`
	Period    string    `json:"period"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"` // -1 when no limit is configured
}

// Usage reports how much of the monthly limit the user has consumed for
// metricKey in period.
func (s *Service) Usage(ctx context.Context, userID uuid.UUID, metricKey, period string) (*Usage, error) {
	used, err := s.store.GetUsage(ctx, userID, metricKey, period)
	if err != nil {
		return nil, fmt.Errorf("reading %s usage: %w", metricKey, err)
	}

	u := &Usage{UserID: userID, Metric: metricKey, Period: period, Used: used, Remaining: -1}
	if s.monthlyLimit > 0 {
		u.Limit = s.monthlyLimit
		u.Remaining = max(s.monthlyLimit-used, 0)
	}
	return u, nil
}
