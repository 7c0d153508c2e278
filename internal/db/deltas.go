package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

const deltaColumns = `id, domain_id, run_id, previous_run_id, new_links, lost_links,
	new_ref_domains, lost_ref_domains, created_at`

func scanDelta(row pgx.Row) (*models.Delta, error) {
	var d models.Delta
	err := row.Scan(
		&d.ID,
		&d.DomainID,
		&d.RunID,
		&d.PreviousRunID,
		&d.NewLinks,
		&d.LostLinks,
		&d.NewRefDomains,
		&d.LostRefDomains,
		&d.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeltaNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// InsertDelta stores a run's delta. Deltas are append-only: if the run already
// has one it is returned unchanged.
func (d *DB) InsertDelta(ctx context.Context, delta *models.Delta) (*models.Delta, error) {
	query := `
		INSERT INTO backlink_deltas (id, domain_id, run_id, previous_run_id, new_links, lost_links,
			new_ref_domains, lost_ref_domains, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := d.Pool.Exec(ctx, query,
		delta.ID,
		delta.DomainID,
		delta.RunID,
		delta.PreviousRunID,
		delta.NewLinks,
		delta.LostLinks,
		delta.NewRefDomains,
		delta.LostRefDomains,
		delta.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d.GetDeltaByRun(ctx, delta.RunID)
}

// GetDeltaByRun retrieves the delta computed for a run.
func (d *DB) GetDeltaByRun(ctx context.Context, runID uuid.UUID) (*models.Delta, error) {
	query := `SELECT ` + deltaColumns + ` FROM backlink_deltas WHERE run_id = $1`
	return scanDelta(d.Pool.QueryRow(ctx, query, runID))
}
