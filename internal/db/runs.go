package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

// runColumns is the standard column list for run queries.
const runColumns = `id, domain_id, provider, status, settings, totals, summary, attempts,
	error_message, started_at, finished_at, created_at, updated_at`

func scanRun(row pgx.Row) (*models.Run, error) {
	var r models.Run
	err := row.Scan(
		&r.ID,
		&r.DomainID,
		&r.Provider,
		&r.Status,
		&r.Settings,
		&r.Totals,
		&r.Summary,
		&r.Attempts,
		&r.ErrorMessage,
		&r.StartedAt,
		&r.FinishedAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRuns(rows pgx.Rows) ([]models.Run, error) {
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var r models.Run
		if err := rows.Scan(
			&r.ID,
			&r.DomainID,
			&r.Provider,
			&r.Status,
			&r.Settings,
			&r.Totals,
			&r.Summary,
			&r.Attempts,
			&r.ErrorMessage,
			&r.StartedAt,
			&r.FinishedAt,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// EnqueueRun creates a pending run for a domain. Returns ErrActiveRunExists
// when the domain already has a pending or running run.
func (d *DB) EnqueueRun(ctx context.Context, domainID uuid.UUID, provider string, settings models.RunSettings) (*models.Run, error) {
	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Serialises enqueues per domain.
	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM domains WHERE id = $1 FOR UPDATE`, domainID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDomainNotFound
	}
	if err != nil {
		return nil, err
	}

	var active bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM backlink_runs
			WHERE domain_id = $1 AND status IN ('pending', 'running')
		)
	`, domainID).Scan(&active)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, ErrActiveRunExists
	}

	run, err := scanRun(tx.QueryRow(ctx, `
		INSERT INTO backlink_runs (domain_id, provider, status, settings)
		VALUES ($1, $2, 'pending', $3)
		RETURNING `+runColumns,
		domainID, provider, settings,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID.
func (d *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM backlink_runs WHERE id = $1`
	return scanRun(d.Pool.QueryRow(ctx, query, id))
}

// ListRunsByDomain returns a domain's runs, newest first.
func (d *DB) ListRunsByDomain(ctx context.Context, domainID uuid.UUID, limit int) ([]models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM backlink_runs
		WHERE domain_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := d.Pool.Query(ctx, query, domainID, limit)
	if err != nil {
		return nil, err
	}
	return scanRuns(rows)
}

// ListRecentRuns returns the most recently created runs across domains, each
// with its domain host.
func (d *DB) ListRecentRuns(ctx context.Context, limit int) ([]models.RunWithHost, error) {
	query := `
		WITH recent AS (
			SELECT ` + runColumns + `
			FROM backlink_runs
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		)
		SELECT recent.*, d.host
		FROM recent
		JOIN domains d ON d.id = recent.domain_id
		ORDER BY recent.created_at DESC, recent.id DESC
	`
	rows, err := d.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.RunWithHost
	for rows.Next() {
		var r models.RunWithHost
		if err := rows.Scan(
			&r.ID,
			&r.DomainID,
			&r.Provider,
			&r.Status,
			&r.Settings,
			&r.Totals,
			&r.Summary,
			&r.Attempts,
			&r.ErrorMessage,
			&r.StartedAt,
			&r.FinishedAt,
			&r.CreatedAt,
			&r.UpdatedAt,
			&r.Host,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// ClaimPendingRun leases the oldest pending run that no other worker holds.
// Returns nil without error when there is nothing to claim. A lease expires
// after lease so runs abandoned by a crashed worker become claimable again.
func (d *DB) ClaimPendingRun(ctx context.Context, lease time.Duration) (*models.Run, error) {
	query := `
		UPDATE backlink_runs
		SET claimed_at = NOW()
		WHERE id = (
			SELECT id FROM backlink_runs
			WHERE status = 'pending'
			  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $1))
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + runColumns

	run, err := scanRun(d.Pool.QueryRow(ctx, query, lease.Seconds()))
	if errors.Is(err, ErrRunNotFound) {
		return nil, nil
	}
	return run, err
}

// FailStaleRuns fails runs that have been running for longer than olderThan.
// Such runs were abandoned by a worker that died mid-execution; failing them
// frees the domain for the next enqueue. It returns the ids it failed.
func (d *DB) FailStaleRuns(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	query := `
		UPDATE backlink_runs
		SET status = 'failed', error_message = $2, finished_at = NOW(), updated_at = NOW()
		WHERE status = 'running'
		  AND started_at < NOW() - make_interval(secs => $1)
		RETURNING id
	`
	rows, err := d.Pool.Query(ctx, query, olderThan.Seconds(), models.StaleRunMessage)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// MarkRunRunning moves a pending or failed run to running and counts the
// attempt. Returns ErrRunStateConflict if the run is in any other state.
func (d *DB) MarkRunRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	query := `
		UPDATE backlink_runs
		SET status = 'running', started_at = $2, finished_at = NULL, error_message = NULL,
			attempts = attempts + 1, updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'failed')
	`
	tag, err := d.Pool.Exec(ctx, query, id, startedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark run %s running: %w", id, ErrRunStateConflict)
	}
	return nil
}

// SaveRunTotals stores the provider summary snapshot on a run.
func (d *DB) SaveRunTotals(ctx context.Context, id uuid.UUID, totals models.RunTotals) error {
	_, err := d.Pool.Exec(ctx,
		`UPDATE backlink_runs SET totals = $2, updated_at = NOW() WHERE id = $1`,
		id, totals,
	)
	return err
}

// UpdateRunRiskScore rewrites the risk score inside a run's summary. Runs
// without a summary are left untouched.
func (d *DB) UpdateRunRiskScore(ctx context.Context, id uuid.UUID, score int) error {
	_, err := d.Pool.Exec(ctx, `
		UPDATE backlink_runs
		SET summary = jsonb_set(summary, '{risk_score}', to_jsonb($2::int)), updated_at = NOW()
		WHERE id = $1 AND summary IS NOT NULL
	`, id, score)
	return err
}

// CompleteRun marks a running run completed with its summary document.
func (d *DB) CompleteRun(ctx context.Context, id uuid.UUID, summary models.RunSummary, finishedAt time.Time) error {
	query := `
		UPDATE backlink_runs
		SET status = 'completed', summary = $2, finished_at = $3, error_message = NULL, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`
	tag, err := d.Pool.Exec(ctx, query, id, summary, finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", id, ErrRunStateConflict)
	}
	return nil
}

// FailRun marks a run failed with the error message. Completed runs are
// never downgraded.
func (d *DB) FailRun(ctx context.Context, id uuid.UUID, message string, finishedAt time.Time) error {
	query := `
		UPDATE backlink_runs
		SET status = 'failed', error_message = $2, finished_at = $3, updated_at = $3
		WHERE id = $1 AND status <> 'completed'
	`
	tag, err := d.Pool.Exec(ctx, query, id, message, finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail run %s: %w", id, ErrRunStateConflict)
	}
	return nil
}

// PreviousCompletedRun returns the latest completed run of the domain created
// strictly before run. Ids are random so ordering is by creation time, with
// the id as a tiebreaker. Returns nil without error when there is none.
func (d *DB) PreviousCompletedRun(ctx context.Context, domainID uuid.UUID, run *models.Run) (*models.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM backlink_runs
		WHERE domain_id = $1
		  AND status = 'completed'
		  AND (created_at, id) < ($3, $2)
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	prev, err := scanRun(d.Pool.QueryRow(ctx, query, domainID, run.ID, run.CreatedAt))
	if errors.Is(err, ErrRunNotFound) {
		return nil, nil
	}
	return prev, err
}

// CountRunsByStatus returns the number of runs in each status.
func (d *DB) CountRunsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := d.Pool.Query(ctx, `SELECT status, COUNT(*) FROM backlink_runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// GetRunStats counts what a run actually stored.
func (d *DB) GetRunStats(ctx context.Context, runID uuid.UUID) (*models.RunStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM backlinks WHERE run_id = $1),
			(SELECT COUNT(*) FROM referring_domains WHERE run_id = $1),
			(SELECT COUNT(*) FROM backlinks WHERE run_id = $1 AND rel = 'follow'),
			(SELECT COUNT(*) FROM backlinks WHERE run_id = $1 AND rel <> 'follow'),
			(SELECT COUNT(*) FROM backlink_anchors WHERE run_id = $1)
	`
	var s models.RunStats
	err := d.Pool.QueryRow(ctx, query, runID).Scan(
		&s.Backlinks,
		&s.RefDomains,
		&s.Follow,
		&s.Nofollow,
		&s.Anchors,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
