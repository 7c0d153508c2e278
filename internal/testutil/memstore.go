package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"backlinks/internal/db"
	"backlinks/internal/models"
)

// MemStore is an in-memory implementation of every store interface the
// pipeline, jobs and handlers depend on. It mirrors the Postgres semantics
// that matter to callers: insert-or-ignore keys, COALESCE on action status,
// run state guards and the sentinel errors from package db.
type MemStore struct {
	mu sync.Mutex

	tick time.Time

	domains    map[uuid.UUID]*models.Domain
	runs       map[uuid.UUID]*models.Run
	claimedAt  map[uuid.UUID]time.Time
	backlinks  []*models.Backlink
	refDomains []*models.ReferringDomain
	anchors    []*models.AnchorSummary
	aggregates map[uuid.UUID]map[string]*models.BacklinkRefDomain
	deltas     map[uuid.UUID]*models.Delta
	usage      map[string]int64
	activity   []models.ActivityEvent

	nextBacklinkID  int64
	nextRefDomainID int64
	nextAnchorID    int64

	calls map[string]int
	fail  map[string]error
}

// NewMemStore returns an empty store whose timestamps start at a fixed instant
// and advance one second per write.
func NewMemStore() *MemStore {
	return &MemStore{
		tick:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		domains:    make(map[uuid.UUID]*models.Domain),
		runs:       make(map[uuid.UUID]*models.Run),
		claimedAt:  make(map[uuid.UUID]time.Time),
		aggregates: make(map[uuid.UUID]map[string]*models.BacklinkRefDomain),
		deltas:     make(map[uuid.UUID]*models.Delta),
		usage:      make(map[string]int64),
		calls:      make(map[string]int),
		fail:       make(map[string]error),
	}
}

// FailOn makes every later call to method return err. A nil err clears it.
func (m *MemStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

// Calls returns how many times method was invoked.
func (m *MemStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter records a call and returns the injected error, if any. Caller holds mu.
func (m *MemStore) enter(method string) error {
	m.calls[method]++
	return m.fail[method]
}

func (m *MemStore) now() time.Time {
	m.tick = m.tick.Add(time.Second)
	return m.tick
}

// --- seeding and inspection helpers ---

// AddDomain stores a domain, assigning an id and timestamps when unset.
func (m *MemStore) AddDomain(d models.Domain) *models.Domain {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UserID == uuid.Nil {
		d.UserID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
		d.UpdatedAt = d.CreatedAt
	}
	m.domains[d.ID] = &d
	cp := d
	return &cp
}

// AddRun stores a run, assigning an id, status and timestamps when unset.
func (m *MemStore) AddRun(r models.Run) *models.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = models.RunStatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
		r.UpdatedAt = r.CreatedAt
	}
	m.runs[r.ID] = &r
	cp := r
	return &cp
}

// Backlinks returns a run's backlinks ordered by id.
func (m *MemStore) Backlinks(runID uuid.UUID) []models.Backlink {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Backlink
	for _, b := range m.backlinks {
		if b.RunID == runID {
			out = append(out, copyBacklink(b))
		}
	}
	return out
}

// RefDomains returns a run's referring domains ordered by id.
func (m *MemStore) RefDomains(runID uuid.UUID) []models.ReferringDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReferringDomain
	for _, r := range m.refDomains {
		if r.RunID == runID {
			out = append(out, *r)
		}
	}
	return out
}

// Anchors returns a run's anchor summaries ordered by id.
func (m *MemStore) Anchors(runID uuid.UUID) []models.AnchorSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnchorSummary
	for _, a := range m.anchors {
		if a.RunID == runID {
			out = append(out, *a)
		}
	}
	return out
}

// Aggregates returns a domain's cross-run referring domain aggregates.
func (m *MemStore) Aggregates(domainID uuid.UUID) map[string]models.BacklinkRefDomain {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.BacklinkRefDomain)
	for name, a := range m.aggregates[domainID] {
		out[name] = *a
	}
	return out
}

// Deltas returns every stored delta.
func (m *MemStore) Deltas() []models.Delta {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Delta, 0, len(m.deltas))
	for _, d := range m.deltas {
		out = append(out, *d)
	}
	return out
}

// Activity returns every recorded activity event in insertion order.
func (m *MemStore) Activity() []models.ActivityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.activity)
}

// SetRunStatus forces a run's status, for arranging test scenarios.
func (m *MemStore) SetRunStatus(id uuid.UUID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		r.Status = status
	}
}

func copyBacklink(b *models.Backlink) models.Backlink {
	cp := *b
	cp.RiskFlags = slices.Clone(b.RiskFlags)
	cp.Tags = slices.Clone(b.Tags)
	if b.ActionStatus != nil {
		s := *b.ActionStatus
		cp.ActionStatus = &s
	}
	if b.RefDomainID != nil {
		id := *b.RefDomainID
		cp.RefDomainID = &id
	}
	return cp
}

// --- domains ---

// CreateDomain registers a domain; hosts are unique.
func (m *MemStore) CreateDomain(_ context.Context, d *models.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateDomain"); err != nil {
		return err
	}
	for _, existing := range m.domains {
		if existing.Host == d.Host {
			return db.ErrDuplicateDomain
		}
	}
	d.ID = uuid.New()
	d.CreatedAt = m.now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.domains[d.ID] = &cp
	return nil
}

// GetDomain returns a domain by id.
func (m *MemStore) GetDomain(_ context.Context, id uuid.UUID) (*models.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDomain"); err != nil {
		return nil, err
	}
	d, ok := m.domains[id]
	if !ok {
		return nil, db.ErrDomainNotFound
	}
	cp := *d
	return &cp, nil
}

// ListSchedulableDomains returns enabled domains without an active run.
func (m *MemStore) ListSchedulableDomains(_ context.Context) ([]models.Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListSchedulableDomains"); err != nil {
		return nil, err
	}
	var out []models.Domain
	for _, d := range m.domains {
		if d.BacklinksEnabled && !m.hasActiveRun(d.ID) {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b models.Domain) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *MemStore) hasActiveRun(domainID uuid.UUID) bool {
	for _, r := range m.runs {
		if r.DomainID == domainID && r.IsActive() {
			return true
		}
	}
	return false
}

// --- runs ---

// EnqueueRun creates a pending run unless the domain already has an active one.
func (m *MemStore) EnqueueRun(_ context.Context, domainID uuid.UUID, provider string, settings models.RunSettings) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("EnqueueRun"); err != nil {
		return nil, err
	}
	if _, ok := m.domains[domainID]; !ok {
		return nil, db.ErrDomainNotFound
	}
	if m.hasActiveRun(domainID) {
		return nil, db.ErrActiveRunExists
	}
	now := m.now()
	r := &models.Run{
		ID:        uuid.New(),
		DomainID:  domainID,
		Provider:  provider,
		Status:    models.RunStatusPending,
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.runs[r.ID] = r
	cp := *r
	return &cp, nil
}

// GetRun returns a run by id.
func (m *MemStore) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRun"); err != nil {
		return nil, err
	}
	r, ok := m.runs[id]
	if !ok {
		return nil, db.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemStore) sortedRuns(keep func(*models.Run) bool) []models.Run {
	var out []models.Run
	for _, r := range m.runs {
		if keep(r) {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b models.Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID.String(), a.ID.String())
	})
	return out
}

// ListRunsByDomain returns a domain's runs, newest first.
func (m *MemStore) ListRunsByDomain(_ context.Context, domainID uuid.UUID, limit int) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRunsByDomain"); err != nil {
		return nil, err
	}
	out := m.sortedRuns(func(r *models.Run) bool { return r.DomainID == domainID })
	return out[:min(limit, len(out))], nil
}

// ListRecentRuns returns the newest runs across domains with their hosts.
func (m *MemStore) ListRecentRuns(_ context.Context, limit int) ([]models.RunWithHost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRecentRuns"); err != nil {
		return nil, err
	}
	var out []models.RunWithHost
	for _, r := range m.sortedRuns(func(*models.Run) bool { return true }) {
		d, ok := m.domains[r.DomainID]
		if !ok {
			continue
		}
		out = append(out, models.RunWithHost{Run: r, Host: d.Host})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ClaimPendingRun leases the oldest unleased pending run.
func (m *MemStore) ClaimPendingRun(_ context.Context, lease time.Duration) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ClaimPendingRun"); err != nil {
		return nil, err
	}
	now := m.now()
	var oldest *models.Run
	for _, r := range m.runs {
		if r.Status != models.RunStatusPending {
			continue
		}
		if at, ok := m.claimedAt[r.ID]; ok && now.Sub(at) < lease {
			continue
		}
		if oldest == nil || r.CreatedAt.Before(oldest.CreatedAt) {
			oldest = r
		}
	}
	if oldest == nil {
		return nil, nil
	}
	m.claimedAt[oldest.ID] = now
	cp := *oldest
	return &cp, nil
}

// FailStaleRuns fails running runs started more than olderThan ago.
func (m *MemStore) FailStaleRuns(_ context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FailStaleRuns"); err != nil {
		return nil, err
	}
	now := m.now()
	var ids []uuid.UUID
	for _, r := range m.runs {
		if r.Status != models.RunStatusRunning || r.StartedAt == nil || now.Sub(*r.StartedAt) <= olderThan {
			continue
		}
		msg := models.StaleRunMessage
		r.Status = models.RunStatusFailed
		r.ErrorMessage = &msg
		r.FinishedAt = &now
		r.UpdatedAt = now
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// MarkRunRunning moves a pending or failed run to running.
func (m *MemStore) MarkRunRunning(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkRunRunning"); err != nil {
		return err
	}
	r, ok := m.runs[id]
	if !ok || !r.CanExecute() {
		return fmt.Errorf("mark run %s running: %w", id, db.ErrRunStateConflict)
	}
	r.Status = models.RunStatusRunning
	r.StartedAt = &startedAt
	r.FinishedAt = nil
	r.ErrorMessage = nil
	r.Attempts++
	r.UpdatedAt = startedAt
	return nil
}

// SaveRunTotals stores the provider summary snapshot.
func (m *MemStore) SaveRunTotals(_ context.Context, id uuid.UUID, totals models.RunTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveRunTotals"); err != nil {
		return err
	}
	r, ok := m.runs[id]
	if !ok {
		return db.ErrRunNotFound
	}
	r.Totals = &totals
	return nil
}

// CompleteRun marks a running run completed.
func (m *MemStore) CompleteRun(_ context.Context, id uuid.UUID, summary models.RunSummary, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CompleteRun"); err != nil {
		return err
	}
	r, ok := m.runs[id]
	if !ok || r.Status != models.RunStatusRunning {
		return fmt.Errorf("complete run %s: %w", id, db.ErrRunStateConflict)
	}
	r.Status = models.RunStatusCompleted
	r.Summary = &summary
	r.FinishedAt = &finishedAt
	r.ErrorMessage = nil
	r.UpdatedAt = finishedAt
	return nil
}

// UpdateRunRiskScore rewrites the risk score of a run's summary, if any.
func (m *MemStore) UpdateRunRiskScore(_ context.Context, id uuid.UUID, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateRunRiskScore"); err != nil {
		return err
	}
	r, ok := m.runs[id]
	if !ok {
		return db.ErrRunNotFound
	}
	if r.Summary != nil {
		s := *r.Summary
		s.RiskScore = score
		r.Summary = &s
	}
	return nil
}

// FailRun marks a run failed unless it already completed.
func (m *MemStore) FailRun(_ context.Context, id uuid.UUID, message string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FailRun"); err != nil {
		return err
	}
	r, ok := m.runs[id]
	if !ok || r.Status == models.RunStatusCompleted {
		return fmt.Errorf("fail run %s: %w", id, db.ErrRunStateConflict)
	}
	r.Status = models.RunStatusFailed
	r.ErrorMessage = &message
	r.FinishedAt = &finishedAt
	r.UpdatedAt = finishedAt
	return nil
}

// PreviousCompletedRun returns the latest completed run of the domain created
// strictly before run.
func (m *MemStore) PreviousCompletedRun(_ context.Context, domainID uuid.UUID, run *models.Run) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PreviousCompletedRun"); err != nil {
		return nil, err
	}
	candidates := m.sortedRuns(func(r *models.Run) bool {
		if r.DomainID != domainID || r.Status != models.RunStatusCompleted || r.ID == run.ID {
			return false
		}
		if c := r.CreatedAt.Compare(run.CreatedAt); c != 0 {
			return c < 0
		}
		return r.ID.String() < run.ID.String()
	})
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// CountRunsByStatus returns run counts per status.
func (m *MemStore) CountRunsByStatus(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CountRunsByStatus"); err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range m.runs {
		counts[r.Status]++
	}
	return counts, nil
}

// GetRunStats counts what a run stored.
func (m *MemStore) GetRunStats(_ context.Context, runID uuid.UUID) (*models.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRunStats"); err != nil {
		return nil, err
	}
	var s models.RunStats
	for _, b := range m.backlinks {
		if b.RunID != runID {
			continue
		}
		s.Backlinks++
		if b.IsFollow() {
			s.Follow++
		} else {
			s.Nofollow++
		}
	}
	for _, r := range m.refDomains {
		if r.RunID == runID {
			s.RefDomains++
		}
	}
	for _, a := range m.anchors {
		if a.RunID == runID {
			s.Anchors++
		}
	}
	return &s, nil
}

// --- backlinks ---

// InsertBacklinks inserts backlinks, ignoring fingerprints the run already has.
func (m *MemStore) InsertBacklinks(_ context.Context, runID uuid.UUID, backlinks []models.Backlink) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertBacklinks"); err != nil {
		return 0, err
	}
	var inserted int64
	for _, b := range backlinks {
		if m.hasFingerprint(runID, b.Fingerprint) {
			continue
		}
		m.nextBacklinkID++
		now := m.now()
		row := copyBacklink(&b)
		row.ID = m.nextBacklinkID
		row.RunID = runID
		row.RiskFlags = nonNil(row.RiskFlags)
		row.Tags = nonNil(row.Tags)
		row.ActionStatus = nil
		row.RefDomainID = nil
		row.CreatedAt = now
		row.UpdatedAt = now
		m.backlinks = append(m.backlinks, &row)
		inserted++
	}
	return inserted, nil
}

func (m *MemStore) hasFingerprint(runID uuid.UUID, fp string) bool {
	for _, b := range m.backlinks {
		if b.RunID == runID && b.Fingerprint == fp {
			return true
		}
	}
	return false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ListBacklinks returns up to limit backlinks with id > afterID, by id.
func (m *MemStore) ListBacklinks(_ context.Context, runID uuid.UUID, afterID int64, limit int) ([]models.Backlink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListBacklinks"); err != nil {
		return nil, err
	}
	var out []models.Backlink
	for _, b := range m.backlinks {
		if b.RunID == runID && b.ID > afterID {
			out = append(out, copyBacklink(b))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// ListRunBacklinks returns a page of backlinks, riskiest first.
func (m *MemStore) ListRunBacklinks(_ context.Context, runID uuid.UUID, filter models.BacklinkFilter) ([]models.Backlink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRunBacklinks"); err != nil {
		return nil, err
	}
	var all []models.Backlink
	for _, b := range m.backlinks {
		if b.RunID != runID {
			continue
		}
		if filter.Action != "" && (b.ActionStatus == nil || *b.ActionStatus != filter.Action) {
			continue
		}
		all = append(all, copyBacklink(b))
	}
	slices.SortStableFunc(all, func(a, b models.Backlink) int { return b.RiskScore - a.RiskScore })
	start := min(filter.Offset, len(all))
	end := min(start+filter.Limit, len(all))
	return all[start:end], nil
}

// UpdateBacklinkScores applies scores; the default action only fills NULLs.
func (m *MemStore) UpdateBacklinkScores(_ context.Context, scores []models.BacklinkScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateBacklinkScores"); err != nil {
		return err
	}
	byID := make(map[int64]*models.Backlink, len(m.backlinks))
	for _, b := range m.backlinks {
		byID[b.ID] = b
	}
	for _, s := range scores {
		b, ok := byID[s.ID]
		if !ok {
			continue
		}
		b.RiskScore = s.RiskScore
		b.QualityScore = s.QualityScore
		b.RiskFlags = nonNil(slices.Clone(s.RiskFlags))
		b.RefDomainID = s.RefDomainID
		if b.ActionStatus == nil {
			action := s.DefaultAction
			b.ActionStatus = &action
		}
		b.UpdatedAt = m.now()
	}
	return nil
}

// SetBacklinkAction records an operator's action status.
func (m *MemStore) SetBacklinkAction(_ context.Context, id int64, action string) (*models.Backlink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetBacklinkAction"); err != nil {
		return nil, err
	}
	for _, b := range m.backlinks {
		if b.ID == id {
			b.ActionStatus = &action
			b.UpdatedAt = m.now()
			cp := copyBacklink(b)
			return &cp, nil
		}
	}
	return nil, db.ErrBacklinkNotFound
}

// ListBacklinkRiskScores returns a run's risk scores by id.
func (m *MemStore) ListBacklinkRiskScores(_ context.Context, runID uuid.UUID) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListBacklinkRiskScores"); err != nil {
		return nil, err
	}
	var out []int
	for _, b := range m.backlinks {
		if b.RunID == runID {
			out = append(out, b.RiskScore)
		}
	}
	return out, nil
}

// RunFingerprints returns a run's fingerprints.
func (m *MemStore) RunFingerprints(_ context.Context, runID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RunFingerprints"); err != nil {
		return nil, err
	}
	var out []string
	for _, b := range m.backlinks {
		if b.RunID == runID {
			out = append(out, b.Fingerprint)
		}
	}
	return out, nil
}

// --- referring domains ---

// InsertRefDomains inserts referring domains, ignoring names the run has.
func (m *MemStore) InsertRefDomains(_ context.Context, runID uuid.UUID, refs []models.ReferringDomain) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertRefDomains"); err != nil {
		return 0, err
	}
	var inserted int64
	for _, r := range refs {
		dup := false
		for _, existing := range m.refDomains {
			if existing.RunID == runID && existing.Domain == r.Domain {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		m.nextRefDomainID++
		row := r
		row.ID = m.nextRefDomainID
		row.RunID = runID
		m.refDomains = append(m.refDomains, &row)
		inserted++
	}
	return inserted, nil
}

// RunRefDomainNames returns a run's referring domain names.
func (m *MemStore) RunRefDomainNames(_ context.Context, runID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RunRefDomainNames"); err != nil {
		return nil, err
	}
	var out []string
	for _, r := range m.refDomains {
		if r.RunID == runID {
			out = append(out, r.Domain)
		}
	}
	return out, nil
}

// UpdateRefDomainScores writes risk onto a run's referring domains.
func (m *MemStore) UpdateRefDomainScores(_ context.Context, runID uuid.UUID, scores []models.RefDomainScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateRefDomainScores"); err != nil {
		return err
	}
	for _, s := range scores {
		for _, r := range m.refDomains {
			if r.RunID == runID && r.Domain == s.RefDomain {
				r.RiskScore = s.RiskScore
			}
		}
	}
	return nil
}

// UpsertRefDomainAggregates merges tallies into the cross-run aggregate and
// recounts distinct links per referring domain across the domain's runs. A
// referring domain with no stored backlinks keeps its tally.
func (m *MemStore) UpsertRefDomainAggregates(_ context.Context, domainID uuid.UUID, aggs []models.BacklinkRefDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpsertRefDomainAggregates"); err != nil {
		return err
	}
	byName, ok := m.aggregates[domainID]
	if !ok {
		byName = make(map[string]*models.BacklinkRefDomain)
		m.aggregates[domainID] = byName
	}
	for _, a := range aggs {
		now := m.now()
		row, ok := byName[a.RefDomain]
		if !ok {
			r := a
			r.ID = uuid.New()
			r.DomainID = domainID
			row = &r
			byName[a.RefDomain] = row
		} else {
			row.FirstSeenAt = least(row.FirstSeenAt, a.FirstSeenAt)
			row.LastSeenAt = greatest(row.LastSeenAt, a.LastSeenAt)
		}
		if links, follow := m.distinctLinks(domainID, a.RefDomain); links > 0 {
			row.LinksCount, row.FollowLinksCount = links, follow
		}
		row.UpdatedAt = now
	}
	return nil
}

// distinctLinks counts the distinct fingerprints, and the follow ones among
// them, seen from refDomain across all runs of domainID. Caller holds mu.
func (m *MemStore) distinctLinks(domainID uuid.UUID, refDomain string) (links, follow int) {
	seen := make(map[string]struct{})
	seenFollow := make(map[string]struct{})
	for _, b := range m.backlinks {
		r, ok := m.runs[b.RunID]
		if !ok || r.DomainID != domainID || b.SourceDomain != refDomain {
			continue
		}
		seen[b.Fingerprint] = struct{}{}
		if b.Rel == models.RelFollow {
			seenFollow[b.Fingerprint] = struct{}{}
		}
	}
	return len(seen), len(seenFollow)
}

// least and greatest follow Postgres semantics: NULLs are ignored.
func least(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.Before(*b) {
		return a
	}
	return b
}

func greatest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}

// GetRefDomainAggregates resolves aggregates for names, keyed by name.
func (m *MemStore) GetRefDomainAggregates(_ context.Context, domainID uuid.UUID, names []string) (map[string]models.BacklinkRefDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRefDomainAggregates"); err != nil {
		return nil, err
	}
	out := make(map[string]models.BacklinkRefDomain, len(names))
	for _, name := range names {
		if a, ok := m.aggregates[domainID][name]; ok {
			out[name] = *a
		}
	}
	return out, nil
}

// UpdateRefDomainAggregateScores writes risk and average quality.
func (m *MemStore) UpdateRefDomainAggregateScores(_ context.Context, domainID uuid.UUID, scores []models.RefDomainScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateRefDomainAggregateScores"); err != nil {
		return err
	}
	for _, s := range scores {
		if a, ok := m.aggregates[domainID][s.RefDomain]; ok {
			a.RiskScore = s.RiskScore
			a.AvgQuality = s.AvgQuality
		}
	}
	return nil
}

// ListRefDomainAggregates returns a page of aggregates, riskiest first.
func (m *MemStore) ListRefDomainAggregates(_ context.Context, domainID uuid.UUID, limit, offset int) ([]models.BacklinkRefDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRefDomainAggregates"); err != nil {
		return nil, err
	}
	var all []models.BacklinkRefDomain
	for _, a := range m.aggregates[domainID] {
		all = append(all, *a)
	}
	slices.SortFunc(all, func(a, b models.BacklinkRefDomain) int {
		if a.RiskScore != b.RiskScore {
			return b.RiskScore - a.RiskScore
		}
		return strings.Compare(a.RefDomain, b.RefDomain)
	})
	start := min(offset, len(all))
	end := min(start+limit, len(all))
	return all[start:end], nil
}

// --- anchors ---

// InsertAnchors inserts anchor summaries, ignoring hashes the run has.
func (m *MemStore) InsertAnchors(_ context.Context, runID uuid.UUID, anchors []models.AnchorSummary) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertAnchors"); err != nil {
		return 0, err
	}
	var inserted int64
	for _, a := range anchors {
		dup := false
		for _, existing := range m.anchors {
			if existing.RunID == runID && existing.AnchorHash == a.AnchorHash {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		m.nextAnchorID++
		row := a
		row.ID = m.nextAnchorID
		row.RunID = runID
		m.anchors = append(m.anchors, &row)
		inserted++
	}
	return inserted, nil
}

// ListRunAnchors returns a run's anchors, most frequent first.
func (m *MemStore) ListRunAnchors(_ context.Context, runID uuid.UUID, limit int) ([]models.AnchorSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRunAnchors"); err != nil {
		return nil, err
	}
	var out []models.AnchorSummary
	for _, a := range m.anchors {
		if a.RunID == runID {
			out = append(out, *a)
		}
	}
	slices.SortStableFunc(out, func(a, b models.AnchorSummary) int { return b.Count - a.Count })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- deltas ---

// InsertDelta stores a delta unless the run already has one.
func (m *MemStore) InsertDelta(_ context.Context, d *models.Delta) (*models.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertDelta"); err != nil {
		return nil, err
	}
	if existing, ok := m.deltas[d.RunID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *d
	m.deltas[d.RunID] = &cp
	out := cp
	return &out, nil
}

// GetDeltaByRun returns a run's delta.
func (m *MemStore) GetDeltaByRun(_ context.Context, runID uuid.UUID) (*models.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDeltaByRun"); err != nil {
		return nil, err
	}
	d, ok := m.deltas[runID]
	if !ok {
		return nil, db.ErrDeltaNotFound
	}
	cp := *d
	return &cp, nil
}

// --- usage and activity ---

func usageKey(userID uuid.UUID, metricKey, period string) string {
	return userID.String() + "|" + metricKey + "|" + period
}

// AddUsage increments a usage counter and returns the new total.
func (m *MemStore) AddUsage(_ context.Context, userID uuid.UUID, metricKey, period string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AddUsage"); err != nil {
		return 0, err
	}
	k := usageKey(userID, metricKey, period)
	m.usage[k] += amount
	return m.usage[k], nil
}

// GetUsage returns a usage counter, 0 if unset.
func (m *MemStore) GetUsage(_ context.Context, userID uuid.UUID, metricKey, period string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetUsage"); err != nil {
		return 0, err
	}
	return m.usage[usageKey(userID, metricKey, period)], nil
}

// InsertActivity appends an activity event.
func (m *MemStore) InsertActivity(_ context.Context, e *models.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertActivity"); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.activity = append(m.activity, *e)
	return nil
}

// ListRunActivity returns a run's events in insertion order.
func (m *MemStore) ListRunActivity(_ context.Context, runID uuid.UUID) ([]models.ActivityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRunActivity"); err != nil {
		return nil, err
	}
	var out []models.ActivityEvent
	for _, e := range m.activity {
		if e.RunID != nil && *e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Ping always succeeds unless a failure is injected.
func (m *MemStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("Ping")
}
