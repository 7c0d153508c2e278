package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlinks/internal/activity"
	"backlinks/internal/clock"
	"backlinks/internal/metrics"
	"backlinks/internal/models"
	"backlinks/internal/provider"
	"backlinks/internal/quota"
	"backlinks/internal/scoring"
	"backlinks/internal/testutil"
)

var testNow = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scenario builds a provider with n backlinks spread over refs referring
// domains and anchors anchor rows. Every fifth backlink is nofollow.
func scenario(n, refs, anchors int) *testutil.StubProvider {
	stub := testutil.NewStubProvider()
	for i := 0; i < n; i++ {
		src := fmt.Sprintf("site%d.com", i%refs)
		rel := models.RelFollow
		if i%5 == 0 {
			rel = models.RelNofollow
		}
		stub.Backlinks = append(stub.Backlinks, provider.BacklinkItem{
			SourceURL:    fmt.Sprintf("https://%s/post-%d", src, i),
			SourceDomain: src,
			TargetURL:    "https://example.com/",
			Anchor:       "Example Company Blog",
			Rel:          rel,
		})
	}
	for i := 0; i < refs; i++ {
		stub.RefDomains = append(stub.RefDomains, provider.RefDomainItem{
			Domain:         fmt.Sprintf("site%d.com", i),
			BacklinksCount: 3,
		})
	}
	for i := 0; i < anchors; i++ {
		stub.Anchors = append(stub.Anchors, provider.AnchorItem{Anchor: fmt.Sprintf("anchor text %d", i), Count: 2})
	}
	return stub
}

type harness struct {
	store *testutil.MemStore
	stub  *testutil.StubProvider
	orch  *Orchestrator
}

func newHarness(stub *testutil.StubProvider) *harness {
	store := testutil.NewMemStore()
	registry := provider.NewRegistry()
	registry.Register("stub", stub.Factory())
	logger := quietLogger()
	clk := clock.NewFixed(testNow)

	orch := New(store, registry,
		quota.NewService(store, 0, logger),
		activity.NewRecorder(store, clk, logger),
		clk,
		Config{DefaultProvider: "stub", Policy: scoring.DefaultPolicy()},
		logger,
	)
	return &harness{store: store, stub: stub, orch: orch}
}

func (h *harness) enqueue(settings models.RunSettings) (*models.Domain, *models.Run) {
	domain := h.store.AddDomain(models.Domain{Host: "example.com", BacklinksEnabled: true})
	run := h.store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub", Settings: settings})
	return domain, run
}

func TestExecute_EndToEnd(t *testing.T) {
	stub := scenario(150, 40, 30)
	stub.Summary = provider.Summary{TotalBacklinks: 150, RefDomains: 40, Follow: 30, Nofollow: 10}
	h := newHarness(stub)
	domain, run := h.enqueue(models.RunSettings{})
	ctx := context.Background()

	got, err := h.orch.Execute(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.FinishedAt)

	// Raw provider totals are kept; the summary counts stored rows.
	require.NotNil(t, stored.Totals)
	assert.Equal(t, 30, stored.Totals.Follow)
	require.NotNil(t, stored.Summary)
	s := stored.Summary
	assert.Equal(t, 150, s.TotalBacklinks)
	assert.Equal(t, 40, s.RefDomains)
	assert.Equal(t, 30, s.AnchorsTotal)
	assert.Equal(t, 120, s.Follow)
	assert.Equal(t, 30, s.Nofollow)
	assert.Equal(t, 150, s.NewLinks)
	assert.Equal(t, 0, s.LostLinks)
	assert.Equal(t, 40, s.NewRefDomains)
	assert.Equal(t, 0, s.LostRefDomains)

	assert.Equal(t, []int{0, 100}, stub.Offsets("backlinks"))
	assert.Equal(t, []int{0}, stub.Offsets("ref_domains"))
	assert.Equal(t, []int{0}, stub.Offsets("anchors"))

	backlinks := h.store.Backlinks(run.ID)
	require.Len(t, backlinks, 150)
	for _, b := range backlinks {
		require.NotNil(t, b.ActionStatus, "backlink %d has no action", b.ID)
		assert.NotNil(t, b.RefDomainID)
	}
	assert.Len(t, h.store.Aggregates(domain.ID), 40)

	used, err := h.store.GetUsage(ctx, domain.UserID, quota.MetricBacklinksLinks, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, int64(150), used)

	events := h.store.Activity()
	require.Len(t, events, 2)
	assert.Equal(t, models.EventRunStarted, events[0].Event)
	assert.Equal(t, models.EventRunCompleted, events[1].Event)
	require.NotNil(t, events[1].UserID)
	assert.Equal(t, domain.UserID, *events[1].UserID)
}

func TestExecute_PaginationStopsAfterEmptyPage(t *testing.T) {
	// Three full pages then an empty one.
	h := newHarness(scenario(300, 10, 0))
	_, run := h.enqueue(models.RunSettings{})

	_, err := h.orch.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 100, 200, 300}, h.stub.Offsets("backlinks"))
	assert.Equal(t, []int{0}, h.stub.Offsets("anchors"))
	assert.Len(t, h.store.Backlinks(run.ID), 300)
}

func TestExecute_RespectsLimits(t *testing.T) {
	h := newHarness(scenario(400, 20, 50))
	_, run := h.enqueue(models.RunSettings{LimitBacklinks: 250, LimitRefDomains: 5, LimitAnchors: 10})

	got, err := h.orch.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 100, 200}, h.stub.Offsets("backlinks"))
	assert.Equal(t, 250, got.Summary.TotalBacklinks)
	assert.Equal(t, 5, got.Summary.RefDomains)
	assert.Equal(t, 10, got.Summary.AnchorsTotal)
}

func TestInsertBacklinks_Idempotent(t *testing.T) {
	h := newHarness(scenario(120, 10, 0))
	_, run := h.enqueue(models.RunSettings{})
	ctx := context.Background()

	n, err := h.orch.insertBacklinks(ctx, run.ID, h.stub.Backlinks)
	require.NoError(t, err)
	assert.Equal(t, int64(120), n)
	once := len(h.store.Backlinks(run.ID))
	n, err = h.orch.insertBacklinks(ctx, run.ID, h.stub.Backlinks)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, 120, once)
	assert.Len(t, h.store.Backlinks(run.ID), once)
	// 120 rows in batches of 100, twice.
	assert.Equal(t, 4, h.store.Calls("InsertBacklinks"))
}

func ingestedTotal(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "backlinks_ingested_total" {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatal("backlinks_ingested_total not registered")
	return 0
}

func TestExecute_IngestedMetricCountsInsertedRows(t *testing.T) {
	stub := scenario(10, 5, 0)
	// The provider repeats two links on the same page.
	stub.Backlinks = append(stub.Backlinks, stub.Backlinks[0], stub.Backlinks[1])
	h := newHarness(stub)
	metrics.Init(h.store)
	_, run := h.enqueue(models.RunSettings{})

	before := ingestedTotal(t)
	got, err := h.orch.Execute(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, 10.0, ingestedTotal(t)-before)
	assert.Equal(t, 10, got.Summary.TotalBacklinks)
	assert.Len(t, h.store.Backlinks(run.ID), 10)
}

func TestExecute_FailureThenRetry(t *testing.T) {
	h := newHarness(scenario(150, 40, 30))
	_, run := h.enqueue(models.RunSettings{})
	ctx := context.Background()

	boom := errors.New("upstream 500")
	h.stub.FailOn("anchors", boom)

	_, err := h.orch.Execute(ctx, run.ID)
	require.ErrorIs(t, err, boom)

	failed, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Contains(t, *failed.ErrorMessage, "upstream 500")
	assert.Contains(t, *failed.ErrorMessage, "ingesting anchors")
	// Rows inserted before the failure stay.
	assert.Len(t, h.store.Backlinks(run.ID), 150)
	assert.Empty(t, h.store.Deltas())

	h.stub.FailOn("anchors", nil)
	got, err := h.orch.Execute(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, 150, got.Summary.TotalBacklinks)
	assert.Len(t, h.store.Backlinks(run.ID), 150)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)

	var names []string
	for _, e := range h.store.Activity() {
		names = append(names, e.Event)
	}
	assert.Equal(t, []string{
		models.EventRunStarted, models.EventRunFailed,
		models.EventRunStarted, models.EventRunCompleted,
	}, names)
}

func TestExecute_SecondRunDelta(t *testing.T) {
	h := newHarness(scenario(150, 40, 0))
	domain, first := h.enqueue(models.RunSettings{})
	ctx := context.Background()

	_, err := h.orch.Execute(ctx, first.ID)
	require.NoError(t, err)

	// Drop ten links and add five new ones.
	h.stub.Backlinks = h.stub.Backlinks[10:]
	for i := 0; i < 5; i++ {
		h.stub.Backlinks = append(h.stub.Backlinks, provider.BacklinkItem{
			SourceURL:    fmt.Sprintf("https://fresh%d.net/", i),
			SourceDomain: fmt.Sprintf("fresh%d.net", i),
			TargetURL:    "https://example.com/",
			Anchor:       "Example Company Blog",
			Rel:          models.RelFollow,
		})
	}
	second := h.store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub"})

	got, err := h.orch.Execute(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 145, got.Summary.TotalBacklinks)
	assert.Equal(t, 5, got.Summary.NewLinks)
	assert.Equal(t, 10, got.Summary.LostLinks)

	d, err := h.store.GetDeltaByRun(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, d.PreviousRunID)
	assert.Equal(t, first.ID, *d.PreviousRunID)
}

func TestExecute_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		factory provider.Factory
		want    error
	}{
		{"unknown provider", nil, provider.ErrUnknownProvider},
		{
			"missing credentials",
			func(provider.Config) (provider.Provider, error) {
				return nil, provider.ErrMissingCredentials
			},
			provider.ErrMissingCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemStore()
			registry := provider.NewRegistry()
			if tt.factory != nil {
				registry.Register("stub", tt.factory)
			}
			orch := New(store, registry, nil, nil, clock.NewFixed(testNow), Config{}, quietLogger())
			domain := store.AddDomain(models.Domain{Host: "example.com"})
			run := store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub"})

			_, err := orch.Execute(context.Background(), run.ID)
			require.ErrorIs(t, err, tt.want)

			stored, err := store.GetRun(context.Background(), run.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RunStatusFailed, stored.Status)
			assert.Nil(t, stored.StartedAt)
			assert.Equal(t, 0, stored.Attempts)
			assert.Equal(t, 0, store.Calls("MarkRunRunning"))
		})
	}
}

func TestExecute_MissingHost(t *testing.T) {
	h := newHarness(scenario(10, 2, 0))
	domain := h.store.AddDomain(models.Domain{Host: "  "})
	run := h.store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub"})

	_, err := h.orch.Execute(context.Background(), run.ID)
	require.ErrorIs(t, err, ErrMissingHost)

	stored, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Empty(t, h.stub.Offsets("summary"))
}

func TestExecute_RejectsNonRunnable(t *testing.T) {
	for _, status := range []string{models.RunStatusRunning, models.RunStatusCompleted} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(scenario(10, 2, 0))
			domain := h.store.AddDomain(models.Domain{Host: "example.com"})
			run := h.store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub", Status: status})

			_, err := h.orch.Execute(context.Background(), run.ID)
			require.ErrorIs(t, err, ErrRunNotRunnable)

			stored, err := h.store.GetRun(context.Background(), run.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
			assert.Equal(t, 0, h.store.Calls("FailRun"))
		})
	}
}

func TestExecute_CanceledContextStillRecordsFailure(t *testing.T) {
	h := newHarness(scenario(10, 2, 0))
	_, run := h.enqueue(models.RunSettings{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Execute(ctx, run.ID)
	require.ErrorIs(t, err, context.Canceled)

	stored, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "context canceled")
}

func TestExecute_ScoringFailure(t *testing.T) {
	h := newHarness(scenario(20, 4, 0))
	_, run := h.enqueue(models.RunSettings{})
	h.store.FailOn("UpdateBacklinkScores", errors.New("deadlock detected"))

	_, err := h.orch.Execute(context.Background(), run.ID)
	require.Error(t, err)

	stored, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Contains(t, *stored.ErrorMessage, "scoring")
}

func TestRescore_RefreshesRunRisk(t *testing.T) {
	h := newHarness(scenario(30, 6, 0))
	_, run := h.enqueue(models.RunSettings{})
	ctx := context.Background()

	_, err := h.orch.Execute(ctx, run.ID)
	require.NoError(t, err)
	before, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, before.Summary)

	// Same store, stricter policy: every backlink lands in the toxic band.
	strict := scoring.DefaultPolicy()
	strict.RiskBase = 500
	orch := New(h.store, provider.NewRegistry(), nil, nil, clock.NewFixed(testNow),
		Config{DefaultProvider: "stub", Policy: strict}, quietLogger())

	res, err := orch.Rescore(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Backlinks)
	assert.Equal(t, 100, res.RiskScore)

	after, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Summary)
	assert.Greater(t, after.Summary.RiskScore, before.Summary.RiskScore)
	assert.Equal(t, res.RiskScore, after.Summary.RiskScore)
	assert.Equal(t, before.Summary.TotalBacklinks, after.Summary.TotalBacklinks)
	assert.Equal(t, models.RunStatusCompleted, after.Status)
}

func TestRescore_RejectsActiveRuns(t *testing.T) {
	for _, status := range []string{models.RunStatusPending, models.RunStatusRunning} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(scenario(10, 2, 0))
			domain := h.store.AddDomain(models.Domain{Host: "example.com"})
			run := h.store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub", Status: status})

			_, err := h.orch.Rescore(context.Background(), run.ID)
			require.ErrorIs(t, err, ErrRunNotRunnable)
			assert.Equal(t, 0, h.store.Calls("UpdateRunRiskScore"))
		})
	}
}

func TestRescore_FailedRunWithoutSummary(t *testing.T) {
	h := newHarness(scenario(10, 2, 0))
	domain := h.store.AddDomain(models.Domain{Host: "example.com"})
	run := h.store.AddRun(models.Run{DomainID: domain.ID, Provider: "stub", Status: models.RunStatusFailed})

	res, err := h.orch.Rescore(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Backlinks)

	stored, err := h.store.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Summary)
}

func TestBacklinkRow(t *testing.T) {
	h := newHarness(testutil.NewStubProvider())
	row := h.orch.backlinkRow(provider.BacklinkItem{
		SourceURL: "https://www.Casino-Deals.xyz/page",
		TargetURL: "https://example.com/",
		Anchor:    "",
		Rel:       "",
	})

	assert.Equal(t, "casino-deals.xyz", row.SourceDomain)
	assert.Equal(t, "xyz", row.TLD)
	assert.Equal(t, models.RelFollow, row.Rel)
	assert.Len(t, row.Fingerprint, 64)
	assert.Contains(t, row.RiskFlags, scoring.FlagRiskyTLD)
	assert.Contains(t, row.RiskFlags, scoring.FlagSpamKeyword)
	assert.Contains(t, row.RiskFlags, scoring.FlagMissingAnchor)
}

func TestPaginate_TruncatesOversizedPage(t *testing.T) {
	var sunk int
	fetched, pages, err := paginate(context.Background(), 5, 10,
		func(_ context.Context, limit, offset int) (*provider.Page[int], error) {
			return &provider.Page[int]{Items: make([]int, 10)}, nil
		},
		func(_ context.Context, items []int) error {
			sunk += len(items)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 5, fetched)
	assert.Equal(t, 1, pages)
	assert.Equal(t, 5, sunk)
}
