// Package pipeline runs a backlink audit end to end: fetch from the provider,
// persist, score, compare with the previous run, and finalize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"backlinks/internal/clock"
	"backlinks/internal/db"
	"backlinks/internal/delta"
	"backlinks/internal/fingerprint"
	"backlinks/internal/metrics"
	"backlinks/internal/models"
	"backlinks/internal/provider"
	"backlinks/internal/quota"
	"backlinks/internal/risk"
	"backlinks/internal/scoring"
)

// Defaults for Config fields left at zero.
const (
	DefaultPageSize        = 100
	DefaultInsertBatchSize = 100
)

// Store is the persistence the orchestrator needs.
type Store interface {
	scoring.Store
	delta.Store

	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	GetDomain(ctx context.Context, id uuid.UUID) (*models.Domain, error)
	MarkRunRunning(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	SaveRunTotals(ctx context.Context, id uuid.UUID, totals models.RunTotals) error
	InsertBacklinks(ctx context.Context, runID uuid.UUID, backlinks []models.Backlink) (int64, error)
	InsertRefDomains(ctx context.Context, runID uuid.UUID, refs []models.ReferringDomain) (int64, error)
	InsertAnchors(ctx context.Context, runID uuid.UUID, anchors []models.AnchorSummary) (int64, error)
	GetRunStats(ctx context.Context, runID uuid.UUID) (*models.RunStats, error)
	ListBacklinkRiskScores(ctx context.Context, runID uuid.UUID) ([]int, error)
	// UpdateRunRiskScore rewrites the risk score of a run's summary. Runs
	// without a summary are left untouched.
	UpdateRunRiskScore(ctx context.Context, id uuid.UUID, score int) error
	CompleteRun(ctx context.Context, id uuid.UUID, summary models.RunSummary, finishedAt time.Time) error
	FailRun(ctx context.Context, id uuid.UUID, message string, finishedAt time.Time) error
}

// Providers builds a provider by configuration key. *provider.Registry
// satisfies it.
type Providers interface {
	New(name string, cfg provider.Config) (provider.Provider, error)
}

// UsageConsumer receives the links-fetched usage of completed runs.
type UsageConsumer interface {
	Consume(ctx context.Context, userID uuid.UUID, metricKey string, amount int64, period string, meta map[string]any) error
}

// ActivitySink receives run lifecycle events.
type ActivitySink interface {
	Record(ctx context.Context, e models.ActivityEvent)
}

// Config tunes an Orchestrator.
type Config struct {
	DefaultProvider string
	Provider        provider.Config
	PageSize        int
	InsertBatchSize int
	ScoreChunkSize  int
	Policy          scoring.Policy
}

// Orchestrator executes runs.
type Orchestrator struct {
	store     Store
	providers Providers
	usage     UsageConsumer
	activity  ActivitySink
	clock     clock.Clock
	cfg       Config
	logger    *slog.Logger

	rescorer *scoring.Rescorer
	deltas   *delta.Engine
}

// New creates an orchestrator. usage and activity may be nil.
func New(store Store, providers Providers, usage UsageConsumer, activity ActivitySink, clk clock.Clock, cfg Config, logger *slog.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = provider.NameDataForSEO
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.InsertBatchSize <= 0 {
		cfg.InsertBatchSize = DefaultInsertBatchSize
	}
	if cfg.ScoreChunkSize <= 0 {
		cfg.ScoreChunkSize = scoring.DefaultChunkSize
	}
	return &Orchestrator{
		store:     store,
		providers: providers,
		usage:     usage,
		activity:  activity,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		rescorer:  scoring.NewRescorer(store, scoring.NewEngine(cfg.Policy), cfg.ScoreChunkSize, logger),
		deltas:    delta.NewEngine(store, clk),
	}
}

// execution carries the state of one Execute call.
type execution struct {
	run       *models.Run
	domain    *models.Domain
	settings  models.RunSettings
	provider  provider.Provider
	started   time.Time
	backlinks int
	inserted  int64
	pages     map[string]int
}

// Execute runs every phase of runID. Runs that are already running or
// completed are rejected with ErrRunNotRunnable. Any other error is recorded
// on the run, which becomes failed, and returned so the caller can retry.
func (o *Orchestrator) Execute(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	if !run.CanExecute() {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotRunnable, runID, run.Status)
	}

	x := &execution{run: run, pages: make(map[string]int)}
	if err := o.prepare(ctx, x); err != nil {
		o.fail(ctx, x, err)
		return nil, err
	}

	x.started = o.clock.Now()
	if err := o.store.MarkRunRunning(ctx, run.ID, x.started); err != nil {
		if errors.Is(err, db.ErrRunStateConflict) {
			return nil, fmt.Errorf("%w: %v", ErrRunNotRunnable, err)
		}
		return nil, fmt.Errorf("starting run %s: %w", runID, err)
	}
	run.Status = models.RunStatusRunning
	run.StartedAt = &x.started
	o.record(ctx, x, models.EventRunStarted, "backlink run started", nil)

	summary, err := o.runPhases(ctx, x)
	if err != nil {
		o.fail(ctx, x, err)
		return nil, err
	}

	finished := o.clock.Now()
	if err := o.store.CompleteRun(ctx, run.ID, *summary, finished); err != nil {
		err = fmt.Errorf("completing run: %w", err)
		o.fail(ctx, x, err)
		return nil, err
	}
	run.Status = models.RunStatusCompleted
	run.Summary = summary
	run.FinishedAt = &finished
	run.ErrorMessage = nil

	o.consumeUsage(ctx, x)
	metrics.ObserveRun("completed", finished.Sub(x.started))
	o.record(ctx, x, models.EventRunCompleted, "backlink run completed", map[string]any{
		"total_backlinks": summary.TotalBacklinks,
		"ref_domains":     summary.RefDomains,
		"risk_score":      summary.RiskScore,
		"new_links":       summary.NewLinks,
		"lost_links":      summary.LostLinks,
	})
	return run, nil
}

// prepare resolves everything a run needs before it may enter running:
// the domain host and a configured provider.
func (o *Orchestrator) prepare(ctx context.Context, x *execution) error {
	domain, err := o.store.GetDomain(ctx, x.run.DomainID)
	if err != nil {
		return fmt.Errorf("loading domain %s: %w", x.run.DomainID, err)
	}
	x.domain = domain
	if fingerprint.NormalizeDomain(domain.Host) == "" {
		return ErrMissingHost
	}

	name := x.run.Provider
	if name == "" {
		name = o.cfg.DefaultProvider
	}
	p, err := o.providers.New(name, o.cfg.Provider)
	if err != nil {
		return fmt.Errorf("configuring provider: %w", err)
	}
	x.provider = p
	x.settings = x.run.Settings.WithDefaults()
	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, x *execution) (*models.RunSummary, error) {
	host := fingerprint.NormalizeDomain(x.domain.Host)
	runID := x.run.ID

	// 1. Summary
	sum, err := x.provider.FetchSummary(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("fetching summary: %w", err)
	}
	totals := models.RunTotals{
		TotalBacklinks: sum.TotalBacklinks,
		RefDomains:     sum.RefDomains,
		Follow:         sum.Follow,
		Nofollow:       sum.Nofollow,
	}
	if err := o.store.SaveRunTotals(ctx, runID, totals); err != nil {
		return nil, fmt.Errorf("saving totals: %w", err)
	}
	x.run.Totals = &totals

	// 2. Backlinks
	fetched, pages, err := paginate(ctx, x.settings.LimitBacklinks, o.cfg.PageSize,
		func(ctx context.Context, limit, offset int) (*provider.Page[provider.BacklinkItem], error) {
			return x.provider.FetchBacklinks(ctx, host, limit, offset)
		},
		func(ctx context.Context, items []provider.BacklinkItem) error {
			n, err := o.insertBacklinks(ctx, runID, items)
			x.inserted += n
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("ingesting backlinks: %w", err)
	}
	x.backlinks, x.pages["backlinks"] = fetched, pages
	metrics.AddBacklinksIngested(x.inserted)

	// 3. Referring domains
	_, pages, err = paginate(ctx, x.settings.LimitRefDomains, o.cfg.PageSize,
		func(ctx context.Context, limit, offset int) (*provider.Page[provider.RefDomainItem], error) {
			return x.provider.FetchRefDomains(ctx, host, limit, offset)
		},
		func(ctx context.Context, items []provider.RefDomainItem) error {
			return o.insertRefDomains(ctx, runID, items)
		})
	if err != nil {
		return nil, fmt.Errorf("ingesting referring domains: %w", err)
	}
	x.pages["ref_domains"] = pages

	// 4. Anchors
	_, pages, err = paginate(ctx, x.settings.LimitAnchors, o.cfg.PageSize,
		func(ctx context.Context, limit, offset int) (*provider.Page[provider.AnchorItem], error) {
			return x.provider.FetchAnchors(ctx, host, limit, offset)
		},
		func(ctx context.Context, items []provider.AnchorItem) error {
			return o.insertAnchors(ctx, runID, items)
		})
	if err != nil {
		return nil, fmt.Errorf("ingesting anchors: %w", err)
	}
	x.pages["anchors"] = pages

	// 5. Scoring
	if _, err := o.rescorer.Run(ctx, x.run); err != nil {
		return nil, fmt.Errorf("scoring: %w", err)
	}

	// 6. Run risk
	runRisk, err := o.runRisk(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 7. Delta
	d, err := o.deltas.Compute(ctx, x.run)
	if err != nil {
		return nil, fmt.Errorf("computing delta: %w", err)
	}

	// 8. Summary from stored rows
	stats, err := o.store.GetRunStats(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("counting run rows: %w", err)
	}
	return &models.RunSummary{
		TotalBacklinks: stats.Backlinks,
		RefDomains:     stats.RefDomains,
		Follow:         stats.Follow,
		Nofollow:       stats.Nofollow,
		AnchorsTotal:   stats.Anchors,
		RiskScore:      runRisk,
		NewLinks:       d.NewLinks,
		LostLinks:      d.LostLinks,
		NewRefDomains:  d.NewRefDomains,
		LostRefDomains: d.LostRefDomains,
	}, nil
}

// paginate fetches pages in increasing offset order until limit items were
// fetched or the provider returns a short or empty page. Each non-empty page
// is handed to sink. It returns the number of items and pages fetched.
func paginate[T any](
	ctx context.Context,
	limit, pageSize int,
	fetch func(ctx context.Context, limit, offset int) (*provider.Page[T], error),
	sink func(ctx context.Context, items []T) error,
) (int, int, error) {
	fetched, pages := 0, 0
	for fetched < limit {
		want := min(pageSize, limit-fetched)
		page, err := fetch(ctx, want, fetched)
		if err != nil {
			return fetched, pages, fmt.Errorf("page at offset %d: %w", fetched, err)
		}
		pages++

		n := len(page.Items)
		if n > want {
			page.Items, n = page.Items[:want], want
		}
		if n > 0 {
			if err := sink(ctx, page.Items); err != nil {
				return fetched, pages, fmt.Errorf("storing page at offset %d: %w", fetched, err)
			}
		}
		fetched += n
		if n < want {
			break
		}
	}
	return fetched, pages, nil
}

// inBatches calls fn for consecutive sub-slices of at most size items.
func inBatches[T any](items []T, size int, fn func(batch []T) error) error {
	for start := 0; start < len(items); start += size {
		if err := fn(items[start:min(start+size, len(items))]); err != nil {
			return err
		}
	}
	return nil
}

// insertBacklinks stores items in batches and returns how many rows were new.
func (o *Orchestrator) insertBacklinks(ctx context.Context, runID uuid.UUID, items []provider.BacklinkItem) (int64, error) {
	rows := make([]models.Backlink, 0, len(items))
	for _, it := range items {
		rows = append(rows, o.backlinkRow(it))
	}
	var inserted int64
	err := inBatches(rows, o.cfg.InsertBatchSize, func(batch []models.Backlink) error {
		n, err := o.store.InsertBacklinks(ctx, runID, batch)
		inserted += n
		return err
	})
	return inserted, err
}

func (o *Orchestrator) backlinkRow(it provider.BacklinkItem) models.Backlink {
	source := fingerprint.NormalizeDomain(it.SourceDomain)
	if source == "" {
		source = fingerprint.Host(it.SourceURL)
	}
	tld := it.TLD
	if tld == "" {
		tld = fingerprint.TLD(source)
	}
	it.TLD = tld
	rel := it.Rel
	if !models.IsValidRel(rel) {
		rel = models.RelFollow
	}
	it.Rel = rel
	return models.Backlink{
		Fingerprint:  fingerprint.Fingerprint(it.SourceURL, it.TargetURL, rel, it.Anchor),
		SourceURL:    it.SourceURL,
		SourceDomain: source,
		TargetURL:    it.TargetURL,
		Anchor:       it.Anchor,
		Rel:          rel,
		FirstSeen:    it.FirstSeen,
		LastSeen:     it.LastSeen,
		TLD:          tld,
		Country:      it.Country,
		RiskFlags:    risk.ItemFlags(it, o.cfg.Policy),
	}
}

func (o *Orchestrator) insertRefDomains(ctx context.Context, runID uuid.UUID, items []provider.RefDomainItem) error {
	rows := make([]models.ReferringDomain, 0, len(items))
	for _, it := range items {
		name := fingerprint.NormalizeDomain(it.Domain)
		if name == "" {
			continue
		}
		tld := it.TLD
		if tld == "" {
			tld = fingerprint.TLD(name)
		}
		rows = append(rows, models.ReferringDomain{
			Domain:         name,
			BacklinksCount: it.BacklinksCount,
			FirstSeen:      it.FirstSeen,
			LastSeen:       it.LastSeen,
			TLD:            tld,
			Country:        it.Country,
			RiskScore:      risk.SeedRefDomainScore(it.BacklinksCount, tld, o.cfg.Policy),
		})
	}
	return inBatches(rows, o.cfg.InsertBatchSize, func(batch []models.ReferringDomain) error {
		_, err := o.store.InsertRefDomains(ctx, runID, batch)
		return err
	})
}

func (o *Orchestrator) insertAnchors(ctx context.Context, runID uuid.UUID, items []provider.AnchorItem) error {
	rows := make([]models.AnchorSummary, 0, len(items))
	for _, it := range items {
		typ := it.Type
		if typ == "" {
			typ = fingerprint.ClassifyAnchor(it.Anchor)
		}
		rows = append(rows, models.AnchorSummary{
			Anchor:     it.Anchor,
			AnchorHash: fingerprint.AnchorHash(it.Anchor),
			Count:      it.Count,
			Type:       typ,
		})
	}
	return inBatches(rows, o.cfg.InsertBatchSize, func(batch []models.AnchorSummary) error {
		_, err := o.store.InsertAnchors(ctx, runID, batch)
		return err
	})
}

// fail records err on the run. It uses a context detached from ctx so a run
// that hit its deadline is still marked failed.
func (o *Orchestrator) fail(ctx context.Context, x *execution, cause error) {
	ctx = context.WithoutCancel(ctx)
	finished := o.clock.Now()
	msg := cause.Error()

	if err := o.store.FailRun(ctx, x.run.ID, msg, finished); err != nil {
		o.logger.Error("failed to mark run failed", "run_id", x.run.ID, "cause", msg, "error", err)
	} else {
		x.run.Status = models.RunStatusFailed
		x.run.ErrorMessage = &msg
		x.run.FinishedAt = &finished
	}

	if !x.started.IsZero() {
		metrics.ObserveRun("failed", finished.Sub(x.started))
	}
	o.record(ctx, x, models.EventRunFailed, "backlink run failed", map[string]any{"error": msg})
}

func (o *Orchestrator) consumeUsage(ctx context.Context, x *execution) {
	if o.usage == nil || x.domain == nil {
		return
	}
	meta := map[string]any{
		"run_id":    x.run.ID.String(),
		"domain_id": x.domain.ID.String(),
		"pages":     x.pages,
	}
	period := quota.Period(o.clock.Now())
	if err := o.usage.Consume(ctx, x.domain.UserID, quota.MetricBacklinksLinks, int64(x.backlinks), period, meta); err != nil {
		o.logger.Warn("failed to record usage", "run_id", x.run.ID, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, x *execution, event, message string, meta map[string]any) {
	if o.activity == nil {
		return
	}
	runID, domainID := x.run.ID, x.run.DomainID
	e := models.ActivityEvent{
		Event:    event,
		RunID:    &runID,
		DomainID: &domainID,
		Message:  message,
		Context:  meta,
	}
	if x.domain != nil {
		userID := x.domain.UserID
		e.UserID = &userID
	}
	o.activity.Record(ctx, e)
}
