package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

// InsertAnchors bulk-inserts a run's anchor summaries, ignoring hashes the
// run already has.
func (d *DB) InsertAnchors(ctx context.Context, runID uuid.UUID, anchors []models.AnchorSummary) (int64, error) {
	const cols = 5
	return splitRows(anchors, cols, func(part []models.AnchorSummary) (int64, error) {
		args := make([]any, 0, len(part)*cols)
		for _, a := range part {
			args = append(args, runID, a.Anchor, a.AnchorHash, a.Count, a.Type)
		}

		query := `
			INSERT INTO backlink_anchors (run_id, anchor, anchor_hash, count, type)
			VALUES ` + valuesList(len(part), cols) + `
			ON CONFLICT (run_id, anchor_hash) DO NOTHING
		`
		tag, err := d.Pool.Exec(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}

// ListRunAnchors returns a run's anchors, most frequent first.
func (d *DB) ListRunAnchors(ctx context.Context, runID uuid.UUID, limit int) ([]models.AnchorSummary, error) {
	query := `
		SELECT id, run_id, anchor, anchor_hash, count, type
		FROM backlink_anchors
		WHERE run_id = $1
		ORDER BY count DESC, id
		LIMIT $2
	`
	rows, err := d.Pool.Query(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AnchorSummary, error) {
		var a models.AnchorSummary
		err := row.Scan(&a.ID, &a.RunID, &a.Anchor, &a.AnchorHash, &a.Count, &a.Type)
		return a, err
	})
}
