package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

// InsertActivity appends an event to the activity log.
func (d *DB) InsertActivity(ctx context.Context, e *models.ActivityEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	eventCtx := e.Context
	if eventCtx == nil {
		eventCtx = map[string]any{}
	}

	query := `
		INSERT INTO activity_log (id, event, run_id, domain_id, user_id, message, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := d.Pool.Exec(ctx, query, e.ID, e.Event, e.RunID, e.DomainID, e.UserID, e.Message, eventCtx, e.CreatedAt)
	return err
}

// ListRunActivity returns the events recorded for a run, oldest first.
func (d *DB) ListRunActivity(ctx context.Context, runID uuid.UUID) ([]models.ActivityEvent, error) {
	query := `
		SELECT id, event, run_id, domain_id, user_id, message, context, created_at
		FROM activity_log
		WHERE run_id = $1
		ORDER BY created_at, id
	`
	rows, err := d.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ActivityEvent, error) {
		var e models.ActivityEvent
		err := row.Scan(&e.ID, &e.Event, &e.RunID, &e.DomainID, &e.UserID, &e.Message, &e.Context, &e.CreatedAt)
		return e, err
	})
}
