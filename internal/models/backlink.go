package models

import (
	"time"

	"github.com/google/uuid"
)

// Rel class constants
const (
	RelFollow    = "follow"
	RelNofollow  = "nofollow"
	RelSponsored = "sponsored"
	RelUGC       = "ugc"
)

// Action status constants
const (
	ActionKeep    = "keep"
	ActionReview  = "review"
	ActionRemove  = "remove"
	ActionDisavow = "disavow"
)

// Backlink is one source -> target edge discovered in a run.
type Backlink struct {
	ID           int64      `json:"id"`
	RunID        uuid.UUID  `json:"run_id"`
	Fingerprint  string     `json:"fingerprint"`
	SourceURL    string     `json:"source_url"`
	SourceDomain string     `json:"source_domain"`
	TargetURL    string     `json:"target_url"`
	Anchor       string     `json:"anchor"`
	Rel          string     `json:"rel"`
	FirstSeen    *time.Time `json:"first_seen,omitempty"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	TLD          string     `json:"tld"`
	Country      string     `json:"country"`
	RiskFlags    []string   `json:"risk_flags"`
	RiskScore    int        `json:"risk_score"`
	QualityScore int        `json:"quality_score"`
	RefDomainID  *uuid.UUID `json:"ref_domain_id,omitempty"`
	ActionStatus *string    `json:"action_status,omitempty"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasAction reports whether an action status (default or manual) is set.
func (b *Backlink) HasAction() bool {
	return b.ActionStatus != nil && *b.ActionStatus != ""
}

// IsFollow reports whether the link passes authority.
func (b *Backlink) IsFollow() bool {
	return b.Rel == RelFollow
}

// BacklinkScore is the result of the scoring pass for a single backlink.
// DefaultAction is only applied when the row has no action status yet.
type BacklinkScore struct {
	ID            int64
	RiskScore     int
	QualityScore  int
	RiskFlags     []string
	RefDomainID   *uuid.UUID
	DefaultAction string
}

// IsValidAction reports whether s is an operator-assignable action status.
func IsValidAction(s string) bool {
	switch s {
	case ActionKeep, ActionReview, ActionRemove, ActionDisavow:
		return true
	}
	return false
}

// IsValidRel reports whether s is a known rel class.
func IsValidRel(s string) bool {
	switch s {
	case RelFollow, RelNofollow, RelSponsored, RelUGC:
		return true
	}
	return false
}
