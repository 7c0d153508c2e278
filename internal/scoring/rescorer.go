package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"backlinks/internal/models"
)

// DefaultChunkSize is the number of backlinks processed per round trip.
const DefaultChunkSize = 200

// Store is the persistence the rescoring pass needs.
type Store interface {
	// ListBacklinks returns up to limit backlinks of a run with id > afterID,
	// ordered by id.
	ListBacklinks(ctx context.Context, runID uuid.UUID, afterID int64, limit int) ([]models.Backlink, error)
	UpsertRefDomainAggregates(ctx context.Context, domainID uuid.UUID, aggs []models.BacklinkRefDomain) error
	GetRefDomainAggregates(ctx context.Context, domainID uuid.UUID, names []string) (map[string]models.BacklinkRefDomain, error)
	// UpdateBacklinkScores writes scores and sets the default action only
	// where the row has none.
	UpdateBacklinkScores(ctx context.Context, scores []models.BacklinkScore) error
	UpdateRefDomainScores(ctx context.Context, runID uuid.UUID, scores []models.RefDomainScore) error
	UpdateRefDomainAggregateScores(ctx context.Context, domainID uuid.UUID, scores []models.RefDomainScore) error
}

// RescoreResult reports what a rescoring pass touched.
type RescoreResult struct {
	Backlinks  int
	RefDomains int
}

// Rescorer re-aggregates a run's referring domains into the cross-run
// aggregate and (re)scores every backlink of the run in fixed-size chunks.
type Rescorer struct {
	store     Store
	engine    *Engine
	chunkSize int
	logger    *slog.Logger
}

// NewRescorer creates a rescorer. chunkSize <= 0 uses DefaultChunkSize.
func NewRescorer(store Store, engine *Engine, chunkSize int, logger *slog.Logger) *Rescorer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rescorer{store: store, engine: engine, chunkSize: chunkSize, logger: logger}
}

type domainAgg struct {
	links     int
	follow    int
	firstSeen *time.Time
	lastSeen  *time.Time
}

type domainScores struct {
	risks      []int
	qualitySum int
}

// Run executes the aggregation and scoring passes for one run.
func (r *Rescorer) Run(ctx context.Context, run *models.Run) (*RescoreResult, error) {
	aggs, total, err := r.aggregate(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if err := r.upsertAggregates(ctx, run.DomainID, aggs); err != nil {
		return nil, err
	}

	perDomain, scored, err := r.scoreBacklinks(ctx, run, aggs, total)
	if err != nil {
		return nil, err
	}

	scores := make([]models.RefDomainScore, 0, len(perDomain))
	for name, ds := range perDomain {
		links := 0
		if a, ok := aggs[name]; ok {
			links = a.links
		}
		scores = append(scores, models.RefDomainScore{
			RefDomain: name,
			RiskScore: r.engine.ScoreRefDomain(RefDomainInput{
				Risks:       ds.risks,
				DomainLinks: links,
				TotalLinks:  total,
			}),
			AvgQuality: ds.qualitySum / len(ds.risks),
		})
	}
	slices.SortFunc(scores, func(a, b models.RefDomainScore) int {
		return strings.Compare(a.RefDomain, b.RefDomain)
	})

	if err := r.store.UpdateRefDomainScores(ctx, run.ID, scores); err != nil {
		return nil, fmt.Errorf("updating run referring domain scores: %w", err)
	}
	if err := r.store.UpdateRefDomainAggregateScores(ctx, run.DomainID, scores); err != nil {
		return nil, fmt.Errorf("updating referring domain aggregate scores: %w", err)
	}

	r.logger.Info("run rescored",
		"run_id", run.ID,
		"backlinks", scored,
		"ref_domains", len(scores),
	)
	return &RescoreResult{Backlinks: scored, RefDomains: len(scores)}, nil
}

// aggregate walks the run's backlinks in chunks and tallies per source domain.
func (r *Rescorer) aggregate(ctx context.Context, runID uuid.UUID) (map[string]*domainAgg, int, error) {
	aggs := make(map[string]*domainAgg)
	total := 0
	var afterID int64
	for {
		chunk, err := r.store.ListBacklinks(ctx, runID, afterID, r.chunkSize)
		if err != nil {
			return nil, 0, fmt.Errorf("listing backlinks for aggregation: %w", err)
		}
		for i := range chunk {
			b := &chunk[i]
			if b.SourceDomain == "" {
				continue
			}
			a, ok := aggs[b.SourceDomain]
			if !ok {
				a = &domainAgg{}
				aggs[b.SourceDomain] = a
			}
			a.links++
			if b.IsFollow() {
				a.follow++
			}
			a.firstSeen = earliest(a.firstSeen, b.FirstSeen)
			a.lastSeen = latest(a.lastSeen, b.LastSeen)
			total++
		}
		if len(chunk) < r.chunkSize {
			return aggs, total, nil
		}
		afterID = chunk[len(chunk)-1].ID
	}
}

func (r *Rescorer) upsertAggregates(ctx context.Context, domainID uuid.UUID, aggs map[string]*domainAgg) error {
	names := make([]string, 0, len(aggs))
	for name := range aggs {
		names = append(names, name)
	}
	slices.Sort(names)

	for start := 0; start < len(names); start += r.chunkSize {
		end := min(start+r.chunkSize, len(names))
		batch := make([]models.BacklinkRefDomain, 0, end-start)
		for _, name := range names[start:end] {
			a := aggs[name]
			batch = append(batch, models.BacklinkRefDomain{
				DomainID:         domainID,
				RefDomain:        name,
				FirstSeenAt:      a.firstSeen,
				LastSeenAt:       a.lastSeen,
				LinksCount:       a.links,
				FollowLinksCount: a.follow,
			})
		}
		if err := r.store.UpsertRefDomainAggregates(ctx, domainID, batch); err != nil {
			return fmt.Errorf("upserting referring domain aggregates: %w", err)
		}
	}
	return nil
}

// scoreBacklinks scores each chunk with a single aggregate lookup for the
// chunk's distinct source domains. Concentration uses the run's own tallies so
// a backlink's score does not drift as the domain's history grows.
func (r *Rescorer) scoreBacklinks(ctx context.Context, run *models.Run, aggs map[string]*domainAgg, total int) (map[string]*domainScores, int, error) {
	perDomain := make(map[string]*domainScores)
	scored := 0
	var afterID int64
	for {
		chunk, err := r.store.ListBacklinks(ctx, run.ID, afterID, r.chunkSize)
		if err != nil {
			return nil, 0, fmt.Errorf("listing backlinks for scoring: %w", err)
		}
		if len(chunk) == 0 {
			return perDomain, scored, nil
		}

		refs, err := r.store.GetRefDomainAggregates(ctx, run.DomainID, distinctSourceDomains(chunk))
		if err != nil {
			return nil, 0, fmt.Errorf("resolving referring domains: %w", err)
		}

		updates := make([]models.BacklinkScore, 0, len(chunk))
		for i := range chunk {
			b := &chunk[i]
			in := BacklinkInput{
				SourceURL: b.SourceURL,
				TargetURL: b.TargetURL,
				Anchor:    b.Anchor,
				Rel:       b.Rel,
				TLD:       b.TLD,
			}
			var refID *uuid.UUID
			if ref, ok := refs[b.SourceDomain]; ok {
				id := ref.ID
				refID = &id
			}
			if a, ok := aggs[b.SourceDomain]; ok {
				in.DomainLinks = a.links
				in.TotalLinks = total
			}

			res := r.engine.ScoreBacklink(in)
			updates = append(updates, models.BacklinkScore{
				ID:            b.ID,
				RiskScore:     res.Risk,
				QualityScore:  res.Quality,
				RiskFlags:     res.Flags,
				RefDomainID:   refID,
				DefaultAction: DefaultAction(res.Risk),
			})

			if b.SourceDomain != "" {
				ds, ok := perDomain[b.SourceDomain]
				if !ok {
					ds = &domainScores{}
					perDomain[b.SourceDomain] = ds
				}
				ds.risks = append(ds.risks, res.Risk)
				ds.qualitySum += res.Quality
			}
		}

		if err := r.store.UpdateBacklinkScores(ctx, updates); err != nil {
			return nil, 0, fmt.Errorf("updating backlink scores: %w", err)
		}
		scored += len(chunk)

		if len(chunk) < r.chunkSize {
			return perDomain, scored, nil
		}
		afterID = chunk[len(chunk)-1].ID
	}
}

func distinctSourceDomains(chunk []models.Backlink) []string {
	seen := make(map[string]struct{}, len(chunk))
	names := make([]string, 0, len(chunk))
	for i := range chunk {
		d := chunk[i].SourceDomain
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		names = append(names, d)
	}
	return names
}

func earliest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.Before(*b) {
		return a
	}
	return b
}

func latest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}
