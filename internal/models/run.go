package models

import (
	"time"

	"github.com/google/uuid"
)

// Run status constants
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// StaleRunMessage is the error recorded on a run that stayed running past its
// time budget without finishing.
const StaleRunMessage = "run exceeded its time budget without finishing"

// Default per-category fetch limits for a run.
const (
	DefaultLimitBacklinks  = 1000
	DefaultLimitRefDomains = 500
	DefaultLimitAnchors    = 200
)

// RunSettings caps how many rows each category may ingest in a single run.
// Stored as JSON; zero values fall back to the defaults.
type RunSettings struct {
	LimitBacklinks  int `json:"limit_backlinks,omitempty" validate:"omitempty,min=1,max=100000"`
	LimitRefDomains int `json:"limit_ref_domains,omitempty" validate:"omitempty,min=1,max=50000"`
	LimitAnchors    int `json:"limit_anchors,omitempty" validate:"omitempty,min=1,max=50000"`
}

// WithDefaults returns a copy with unset limits replaced by the defaults.
func (s RunSettings) WithDefaults() RunSettings {
	if s.LimitBacklinks <= 0 {
		s.LimitBacklinks = DefaultLimitBacklinks
	}
	if s.LimitRefDomains <= 0 {
		s.LimitRefDomains = DefaultLimitRefDomains
	}
	if s.LimitAnchors <= 0 {
		s.LimitAnchors = DefaultLimitAnchors
	}
	return s
}

// RunTotals is the provider summary snapshot captured at the start of a run.
type RunTotals struct {
	TotalBacklinks int `json:"total_backlinks"`
	RefDomains     int `json:"ref_domains"`
	Follow         int `json:"follow"`
	Nofollow       int `json:"nofollow"`
}

// RunSummary is the document consumers read once a run has completed.
type RunSummary struct {
	TotalBacklinks int `json:"total_backlinks"`
	RefDomains     int `json:"ref_domains"`
	Follow         int `json:"follow"`
	Nofollow       int `json:"nofollow"`
	AnchorsTotal   int `json:"anchors_total"`
	RiskScore      int `json:"risk_score"`
	NewLinks       int `json:"new_links"`
	LostLinks      int `json:"lost_links"`
	NewRefDomains  int `json:"new_ref_domains"`
	LostRefDomains int `json:"lost_ref_domains"`
}

// RunStats are row counts derived from what a run actually stored.
type RunStats struct {
	Backlinks  int
	RefDomains int
	Follow     int
	Nofollow   int
	Anchors    int
}

// Run is one backlink audit execution for a domain.
type Run struct {
	ID           uuid.UUID   `json:"id"`
	DomainID     uuid.UUID   `json:"domain_id"`
	Provider     string      `json:"provider"`
	Status       string      `json:"status"`
	Settings     RunSettings `json:"settings"`
	Totals       *RunTotals  `json:"totals,omitempty"`
	Summary      *RunSummary `json:"summary,omitempty"`
	Attempts     int         `json:"attempts"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// RunWithHost is a run joined with its domain's host, for listings that span
// domains.
type RunWithHost struct {
	Run
	Host string `json:"host"`
}

// IsTerminal reports whether the run has finished, successfully or not.
func (r *Run) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// IsActive reports whether the run is queued or executing.
func (r *Run) IsActive() bool {
	return r.Status == RunStatusPending || r.Status == RunStatusRunning
}

// CanExecute reports whether a worker may (re)start the run.
// Failed runs are re-executable because ingestion is idempotent.
func (r *Run) CanExecute() bool {
	return r.Status == RunStatusPending || r.Status == RunStatusFailed
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}
