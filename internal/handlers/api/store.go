package api

import (
	"context"

	"github.com/google/uuid"

	"backlinks/internal/models"
	"backlinks/internal/quota"
)

// Store is the persistence the JSON API reads and writes. *db.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	CreateDomain(ctx context.Context, d *models.Domain) error
	GetDomain(ctx context.Context, id uuid.UUID) (*models.Domain, error)
	ListRefDomainAggregates(ctx context.Context, domainID uuid.UUID, limit, offset int) ([]models.BacklinkRefDomain, error)

	EnqueueRun(ctx context.Context, domainID uuid.UUID, provider string, settings models.RunSettings) (*models.Run, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRunsByDomain(ctx context.Context, domainID uuid.UUID, limit int) ([]models.Run, error)
	GetDeltaByRun(ctx context.Context, runID uuid.UUID) (*models.Delta, error)

	ListRunBacklinks(ctx context.Context, runID uuid.UUID, filter models.BacklinkFilter) ([]models.Backlink, error)
	ListRunAnchors(ctx context.Context, runID uuid.UUID, limit int) ([]models.AnchorSummary, error)
	SetBacklinkAction(ctx context.Context, id int64, action string) (*models.Backlink, error)
}

// UsageReporter reads metered usage. *quota.Service satisfies it.
type UsageReporter interface {
	Usage(ctx context.Context, userID uuid.UUID, metricKey, period string) (*quota.Usage, error)
}
