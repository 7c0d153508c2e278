// Package handlers renders the server-side dashboard pages.
package handlers

import (
	"context"

	"github.com/google/uuid"

	"backlinks/internal/models"
)

// Store is the read-only persistence the dashboard needs. *db.DB satisfies it.
type Store interface {
	GetDomain(ctx context.Context, id uuid.UUID) (*models.Domain, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.RunWithHost, error)
	GetDeltaByRun(ctx context.Context, runID uuid.UUID) (*models.Delta, error)
	ListRunActivity(ctx context.Context, runID uuid.UUID) ([]models.ActivityEvent, error)
	ListRunBacklinks(ctx context.Context, runID uuid.UUID, filter models.BacklinkFilter) ([]models.Backlink, error)
	ListRunAnchors(ctx context.Context, runID uuid.UUID, limit int) ([]models.AnchorSummary, error)
}
