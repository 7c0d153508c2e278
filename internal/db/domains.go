package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"backlinks/internal/models"
)

const domainColumns = `id, user_id, host, settings, backlinks_enabled, created_at, updated_at`

func scanDomain(row pgx.Row) (*models.Domain, error) {
	var d models.Domain
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Host,
		&d.Settings,
		&d.BacklinksEnabled,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDomainNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanDomains(rows pgx.Rows) ([]models.Domain, error) {
	defer rows.Close()

	var domains []models.Domain
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.Host,
			&d.Settings,
			&d.BacklinksEnabled,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}

	return domains, rows.Err()
}

// CreateDomain registers an audited domain.
func (d *DB) CreateDomain(ctx context.Context, domain *models.Domain) error {
	query := `
		INSERT INTO domains (user_id, host, settings, backlinks_enabled)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := d.Pool.QueryRow(ctx, query,
		domain.UserID,
		domain.Host,
		domain.Settings,
		domain.BacklinksEnabled,
	).Scan(&domain.ID, &domain.CreatedAt, &domain.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDomain
		}
		return err
	}
	return nil
}

// GetDomain retrieves a domain by ID.
func (d *DB) GetDomain(ctx context.Context, id uuid.UUID) (*models.Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE id = $1`
	return scanDomain(d.Pool.QueryRow(ctx, query, id))
}

// ListSchedulableDomains returns enabled domains that have no pending or
// running run.
func (d *DB) ListSchedulableDomains(ctx context.Context) ([]models.Domain, error) {
	query := `
		SELECT ` + domainColumns + `
		FROM domains dom
		WHERE dom.backlinks_enabled
		  AND NOT EXISTS (
			SELECT 1 FROM backlink_runs r
			WHERE r.domain_id = dom.id AND r.status IN ('pending', 'running')
		  )
		ORDER BY dom.created_at
	`

	rows, err := d.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanDomains(rows)
}
