package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

const refDomainAggColumns = `id, domain_id, ref_domain, first_seen_at, last_seen_at, links_count,
	follow_links_count, avg_quality, risk_score, updated_at`

func scanRefDomainAggs(rows pgx.Rows) ([]models.BacklinkRefDomain, error) {
	defer rows.Close()

	var aggs []models.BacklinkRefDomain
	for rows.Next() {
		var a models.BacklinkRefDomain
		if err := rows.Scan(
			&a.ID,
			&a.DomainID,
			&a.RefDomain,
			&a.FirstSeenAt,
			&a.LastSeenAt,
			&a.LinksCount,
			&a.FollowLinksCount,
			&a.AvgQuality,
			&a.RiskScore,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}

	return aggs, rows.Err()
}

// InsertRefDomains bulk-inserts a run's referring domains, ignoring names the
// run already has.
func (d *DB) InsertRefDomains(ctx context.Context, runID uuid.UUID, refs []models.ReferringDomain) (int64, error) {
	const cols = 8
	return splitRows(refs, cols, func(part []models.ReferringDomain) (int64, error) {
		args := make([]any, 0, len(part)*cols)
		for _, r := range part {
			args = append(args, runID, r.Domain, r.BacklinksCount, r.FirstSeen, r.LastSeen, r.TLD, r.Country, r.RiskScore)
		}

		query := `
			INSERT INTO referring_domains (run_id, domain, backlinks_count, first_seen, last_seen, tld, country, risk_score)
			VALUES ` + valuesList(len(part), cols) + `
			ON CONFLICT (run_id, domain) DO NOTHING
		`
		tag, err := d.Pool.Exec(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}

// RunRefDomainNames returns the referring domain names stored for a run.
func (d *DB) RunRefDomainNames(ctx context.Context, runID uuid.UUID) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `SELECT domain FROM referring_domains WHERE run_id = $1`, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UpdateRefDomainScores writes scored risk onto a run's referring domains.
func (d *DB) UpdateRefDomainScores(ctx context.Context, runID uuid.UUID, scores []models.RefDomainScore) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range scores {
		batch.Queue(`UPDATE referring_domains SET risk_score = $3 WHERE run_id = $1 AND domain = $2`,
			runID, s.RefDomain, s.RiskScore)
	}
	return d.Pool.SendBatch(ctx, batch).Close()
}

// UpsertRefDomainAggregates merges a run's per-domain tallies into the
// cross-run aggregate. First/last seen widen. Link counts are the number of
// distinct backlinks (by fingerprint) seen from the referring domain across all
// of the domain's runs, so a link re-fetched by a later run is counted once.
func (d *DB) UpsertRefDomainAggregates(ctx context.Context, domainID uuid.UUID, aggs []models.BacklinkRefDomain) error {
	if len(aggs) == 0 {
		return nil
	}

	const cols = 6
	names := make([]string, 0, len(aggs))
	for _, a := range aggs {
		names = append(names, a.RefDomain)
	}

	tx, err := d.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = splitRows(aggs, cols, func(part []models.BacklinkRefDomain) (int64, error) {
		args := make([]any, 0, len(part)*cols)
		for _, a := range part {
			args = append(args, domainID, a.RefDomain, a.FirstSeenAt, a.LastSeenAt, a.LinksCount, a.FollowLinksCount)
		}
		upsert := `
			INSERT INTO backlink_ref_domains (domain_id, ref_domain, first_seen_at, last_seen_at, links_count, follow_links_count)
			VALUES ` + valuesList(len(part), cols) + `
			ON CONFLICT (domain_id, ref_domain) DO UPDATE SET
				first_seen_at = LEAST(backlink_ref_domains.first_seen_at, EXCLUDED.first_seen_at),
				last_seen_at = GREATEST(backlink_ref_domains.last_seen_at, EXCLUDED.last_seen_at),
				updated_at = NOW()
		`
		tag, err := tx.Exec(ctx, upsert, args...)
		return tag.RowsAffected(), err
	})
	if err != nil {
		return err
	}

	recount := `
		UPDATE backlink_ref_domains a
		SET links_count = c.links, follow_links_count = c.follow
		FROM (
			SELECT b.source_domain,
				COUNT(DISTINCT b.fingerprint) AS links,
				COUNT(DISTINCT b.fingerprint) FILTER (WHERE b.rel = 'follow') AS follow
			FROM backlinks b
			JOIN backlink_runs r ON r.id = b.run_id
			WHERE r.domain_id = $1 AND b.source_domain = ANY($2)
			GROUP BY b.source_domain
		) c
		WHERE a.domain_id = $1 AND a.ref_domain = c.source_domain
	`
	if _, err := tx.Exec(ctx, recount, domainID, names); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetRefDomainAggregates resolves aggregates for a set of referring domain
// names in a single query, keyed by name.
func (d *DB) GetRefDomainAggregates(ctx context.Context, domainID uuid.UUID, names []string) (map[string]models.BacklinkRefDomain, error) {
	out := make(map[string]models.BacklinkRefDomain, len(names))
	if len(names) == 0 {
		return out, nil
	}

	query := `
		SELECT ` + refDomainAggColumns + `
		FROM backlink_ref_domains
		WHERE domain_id = $1 AND ref_domain = ANY($2)
	`
	rows, err := d.Pool.Query(ctx, query, domainID, names)
	if err != nil {
		return nil, err
	}
	aggs, err := scanRefDomainAggs(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range aggs {
		out[a.RefDomain] = a
	}
	return out, nil
}

// UpdateRefDomainAggregateScores writes risk and average quality onto the
// cross-run aggregate.
func (d *DB) UpdateRefDomainAggregateScores(ctx context.Context, domainID uuid.UUID, scores []models.RefDomainScore) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, s := range scores {
		batch.Queue(`
			UPDATE backlink_ref_domains
			SET risk_score = $3, avg_quality = $4, updated_at = NOW()
			WHERE domain_id = $1 AND ref_domain = $2
		`, domainID, s.RefDomain, s.RiskScore, s.AvgQuality)
	}
	return d.Pool.SendBatch(ctx, batch).Close()
}

// ListRefDomainAggregates returns a page of a domain's referring domains,
// riskiest first.
func (d *DB) ListRefDomainAggregates(ctx context.Context, domainID uuid.UUID, limit, offset int) ([]models.BacklinkRefDomain, error) {
	query := `
		SELECT ` + refDomainAggColumns + `
		FROM backlink_ref_domains
		WHERE domain_id = $1
		ORDER BY risk_score DESC, ref_domain
		LIMIT $2 OFFSET $3
	`
	rows, err := d.Pool.Query(ctx, query, domainID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanRefDomainAggs(rows)
}
