package db

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

// backlinkColumns is the standard column list for backlink queries.
const backlinkColumns = `id, run_id, fingerprint, source_url, source_domain, target_url, anchor, rel,
	first_seen, last_seen, tld, country, risk_flags, risk_score, quality_score, ref_domain_id,
	action_status, tags, created_at, updated_at`

func scanBacklink(row pgx.Row) (*models.Backlink, error) {
	var b models.Backlink
	err := row.Scan(
		&b.ID,
		&b.RunID,
		&b.Fingerprint,
		&b.SourceURL,
		&b.SourceDomain,
		&b.TargetURL,
		&b.Anchor,
		&b.Rel,
		&b.FirstSeen,
		&b.LastSeen,
		&b.TLD,
		&b.Country,
		&b.RiskFlags,
		&b.RiskScore,
		&b.QualityScore,
		&b.RefDomainID,
		&b.ActionStatus,
		&b.Tags,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBacklinkNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBacklinks(rows pgx.Rows) ([]models.Backlink, error) {
	defer rows.Close()

	var backlinks []models.Backlink
	for rows.Next() {
		var b models.Backlink
		if err := rows.Scan(
			&b.ID,
			&b.RunID,
			&b.Fingerprint,
			&b.SourceURL,
			&b.SourceDomain,
			&b.TargetURL,
			&b.Anchor,
			&b.Rel,
			&b.FirstSeen,
			&b.LastSeen,
			&b.TLD,
			&b.Country,
			&b.RiskFlags,
			&b.RiskScore,
			&b.QualityScore,
			&b.RefDomainID,
			&b.ActionStatus,
			&b.Tags,
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		backlinks = append(backlinks, b)
	}

	return backlinks, rows.Err()
}

// maxParams is the Postgres limit on bind parameters in one statement.
const maxParams = 65535

// splitRows calls fn on consecutive parts of items, each small enough that a
// multi-row VALUES statement with cols parameters per row stays within
// maxParams. It returns the sum of the counts fn reports.
func splitRows[T any](items []T, cols int, fn func(part []T) (int64, error)) (int64, error) {
	per := maxParams / cols
	var total int64
	for start := 0; start < len(items); start += per {
		n, err := fn(items[start:min(start+per, len(items))])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// valuesList renders "($1, $2, ...), (...)" for rows x cols placeholders.
func valuesList(rows, cols int) string {
	var sb strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// backlinkInsertCols is the number of parameters InsertBacklinks binds per row.
const backlinkInsertCols = 13

// InsertBacklinks bulk-inserts a batch of backlinks for a run. Rows whose
// fingerprint already exists in the run are ignored. Returns the number of
// rows actually inserted. Batches too large for one statement are split.
func (d *DB) InsertBacklinks(ctx context.Context, runID uuid.UUID, backlinks []models.Backlink) (int64, error) {
	return splitRows(backlinks, backlinkInsertCols, func(part []models.Backlink) (int64, error) {
		args := make([]any, 0, len(part)*backlinkInsertCols)
		for _, b := range part {
			args = append(args,
				runID,
				b.Fingerprint,
				b.SourceURL,
				b.SourceDomain,
				b.TargetURL,
				b.Anchor,
				b.Rel,
				b.FirstSeen,
				b.LastSeen,
				b.TLD,
				b.Country,
				nonNil(b.RiskFlags),
				nonNil(b.Tags),
			)
		}

		query := `
			INSERT INTO backlinks (run_id, fingerprint, source_url, source_domain, target_url, anchor, rel,
				first_seen, last_seen, tld, country, risk_flags, tags)
			VALUES ` + valuesList(len(part), backlinkInsertCols) + `
			ON CONFLICT (run_id, fingerprint) DO NOTHING
		`
		tag, err := d.Pool.Exec(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}

// ListBacklinks returns up to limit backlinks of a run with id > afterID,
// ordered by id.
func (d *DB) ListBacklinks(ctx context.Context, runID uuid.UUID, afterID int64, limit int) ([]models.Backlink, error) {
	query := `
		SELECT ` + backlinkColumns + `
		FROM backlinks
		WHERE run_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`
	rows, err := d.Pool.Query(ctx, query, runID, afterID, limit)
	if err != nil {
		return nil, err
	}
	return scanBacklinks(rows)
}

// ListRunBacklinks returns a page of a run's backlinks, riskiest first,
// optionally filtered by action status.
func (d *DB) ListRunBacklinks(ctx context.Context, runID uuid.UUID, filter models.BacklinkFilter) ([]models.Backlink, error) {
	query := `
		SELECT ` + backlinkColumns + `
		FROM backlinks
		WHERE run_id = $1 AND ($2 = '' OR action_status = $2)
		ORDER BY risk_score DESC, id
		LIMIT $3 OFFSET $4
	`
	rows, err := d.Pool.Query(ctx, query, runID, filter.Action, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return scanBacklinks(rows)
}

// UpdateBacklinkScores writes scoring results in one batch. The default action
// is only applied where action_status is still NULL so operator overrides
// survive rescoring.
func (d *DB) UpdateBacklinkScores(ctx context.Context, scores []models.BacklinkScore) error {
	if len(scores) == 0 {
		return nil
	}

	query := `
		UPDATE backlinks
		SET risk_score = $2, quality_score = $3, risk_flags = $4, ref_domain_id = $5,
			action_status = COALESCE(action_status, $6), updated_at = NOW()
		WHERE id = $1
	`
	batch := &pgx.Batch{}
	for _, s := range scores {
		batch.Queue(query, s.ID, s.RiskScore, s.QualityScore, nonNil(s.RiskFlags), s.RefDomainID, s.DefaultAction)
	}
	return d.Pool.SendBatch(ctx, batch).Close()
}

// SetBacklinkAction records an operator's action status for a backlink.
func (d *DB) SetBacklinkAction(ctx context.Context, id int64, action string) (*models.Backlink, error) {
	query := `
		UPDATE backlinks
		SET action_status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + backlinkColumns
	return scanBacklink(d.Pool.QueryRow(ctx, query, id, action))
}

// ListBacklinkRiskScores returns every risk score of a run.
func (d *DB) ListBacklinkRiskScores(ctx context.Context, runID uuid.UUID) ([]int, error) {
	rows, err := d.Pool.Query(ctx, `SELECT risk_score FROM backlinks WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// RunFingerprints returns the fingerprints stored for a run.
func (d *DB) RunFingerprints(ctx context.Context, runID uuid.UUID) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `SELECT fingerprint FROM backlinks WHERE run_id = $1`, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
