package db

import (
	"context"

	"github.com/google/uuid"
)

// AddUsage adds amount to a user's counter for a metric and period and
// returns the new total.
func (d *DB) AddUsage(ctx context.Context, userID uuid.UUID, metricKey, period string, amount int64) (int64, error) {
	query := `
		INSERT INTO usage_counters (user_id, metric_key, period, amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, metric_key, period) DO UPDATE SET
			amount = usage_counters.amount + EXCLUDED.amount,
			updated_at = NOW()
		RETURNING amount
	`
	var total int64
	err := d.Pool.QueryRow(ctx, query, userID, metricKey, period, amount).Scan(&total)
	return total, err
}

// GetUsage returns a user's counter for a metric and period, 0 if unset.
func (d *DB) GetUsage(ctx context.Context, userID uuid.UUID, metricKey, period string) (int64, error) {
	query := `
		SELECT COALESCE(
			(SELECT amount FROM usage_counters WHERE user_id = $1 AND metric_key = $2 AND period = $3),
			0
		)
	`
	var total int64
	err := d.Pool.QueryRow(ctx, query, userID, metricKey, period).Scan(&total)
	return total, err
}
