package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferringDomain is a run-scoped snapshot of a domain linking in.
type ReferringDomain struct {
	ID             int64      `json:"id"`
	RunID          uuid.UUID  `json:"run_id"`
	Domain         string     `json:"domain"`
	BacklinksCount int        `json:"backlinks_count"`
	FirstSeen      *time.Time `json:"first_seen,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	TLD            string     `json:"tld"`
	Country        string     `json:"country"`
	RiskScore      int        `json:"risk_score"`
}

// BacklinkRefDomain is the cross-run aggregate for a referring domain of an
// audited domain. Keyed by (DomainID, RefDomain) and updated by every run.
type BacklinkRefDomain struct {
	ID               uuid.UUID  `json:"id"`
	DomainID         uuid.UUID  `json:"domain_id"`
	RefDomain        string     `json:"ref_domain"`
	FirstSeenAt      *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt       *time.Time `json:"last_seen_at,omitempty"`
	LinksCount       int        `json:"links_count"`
	FollowLinksCount int        `json:"follow_links_count"`
	AvgQuality       int        `json:"avg_quality"`
	RiskScore        int        `json:"risk_score"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FollowRatio returns the share of followed links, 0 when there are none.
func (r *BacklinkRefDomain) FollowRatio() float64 {
	if r.LinksCount == 0 {
		return 0
	}
	return float64(r.FollowLinksCount) / float64(r.LinksCount)
}

// RefDomainScore carries the scoring-pass output for one referring domain.
type RefDomainScore struct {
	RefDomain  string
	RiskScore  int
	AvgQuality int
}
