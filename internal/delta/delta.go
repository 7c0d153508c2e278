// Package delta compares a run with the previous completed run of the same
// domain.
package delta

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"backlinks/internal/clock"
	"backlinks/internal/models"
)

// Store is the persistence the delta engine needs.
type Store interface {
	// PreviousCompletedRun returns the most recent completed run of the
	// domain created strictly before run, or nil when there is none.
	PreviousCompletedRun(ctx context.Context, domainID uuid.UUID, run *models.Run) (*models.Run, error)
	RunFingerprints(ctx context.Context, runID uuid.UUID) ([]string, error)
	RunRefDomainNames(ctx context.Context, runID uuid.UUID) ([]string, error)
	// InsertDelta stores d unless a delta already exists for the run, and
	// returns the stored row.
	InsertDelta(ctx context.Context, d *models.Delta) (*models.Delta, error)
}

// Engine computes and persists deltas.
type Engine struct {
	store Store
	clock clock.Clock
}

// NewEngine creates a delta engine.
func NewEngine(store Store, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{store: store, clock: clk}
}

type runSets struct {
	fingerprints []string
	refDomains   []string
}

// Compute diffs run against its baseline and persists the result. A domain's
// first run reports everything as new and has no previous run.
func (e *Engine) Compute(ctx context.Context, run *models.Run) (*models.Delta, error) {
	prev, err := e.store.PreviousCompletedRun(ctx, run.DomainID, run)
	if err != nil {
		return nil, fmt.Errorf("finding previous run: %w", err)
	}

	var current, previous runSets
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.load(gctx, run.ID, &current) })
	if prev != nil {
		g.Go(func() error { return e.load(gctx, prev.ID, &previous) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &models.Delta{
		ID:        uuid.New(),
		DomainID:  run.DomainID,
		RunID:     run.ID,
		CreatedAt: e.clock.Now(),
	}
	if prev != nil {
		id := prev.ID
		d.PreviousRunID = &id
	}
	d.NewLinks, d.LostLinks = Diff(current.fingerprints, previous.fingerprints)
	d.NewRefDomains, d.LostRefDomains = Diff(current.refDomains, previous.refDomains)

	stored, err := e.store.InsertDelta(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("storing delta: %w", err)
	}
	return stored, nil
}

func (e *Engine) load(ctx context.Context, runID uuid.UUID, sets *runSets) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fps, err := e.store.RunFingerprints(ctx, runID)
		if err != nil {
			return fmt.Errorf("loading fingerprints for run %s: %w", runID, err)
		}
		sets.fingerprints = fps
		return nil
	})
	g.Go(func() error {
		names, err := e.store.RunRefDomainNames(ctx, runID)
		if err != nil {
			return fmt.Errorf("loading referring domains for run %s: %w", runID, err)
		}
		sets.refDomains = names
		return nil
	})
	return g.Wait()
}

// Diff returns how many distinct values are in current but not previous
// (added) and in previous but not current (removed).
func Diff(current, previous []string) (added, removed int) {
	cur := toSet(current)
	prev := toSet(previous)
	for v := range cur {
		if _, ok := prev[v]; !ok {
			added++
		}
	}
	for v := range prev {
		if _, ok := cur[v]; !ok {
			removed++
		}
	}
	return added, removed
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
