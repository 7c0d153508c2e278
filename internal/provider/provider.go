// Package provider defines the backlink data capability consumed by the
// pipeline and its concrete third-party implementations.
package provider

import (
	"context"
	"time"
)

// Summary is the provider's headline count for a host.
type Summary struct {
	TotalBacklinks int `json:"total_backlinks"`
	RefDomains     int `json:"ref_domains"`
	Follow         int `json:"follow"`
	Nofollow       int `json:"nofollow"`
}

// BacklinkItem is a backlink normalized into the canonical shape.
type BacklinkItem struct {
	SourceURL    string     `json:"source_url"`
	SourceDomain string     `json:"source_domain"`
	TargetURL    string     `json:"target_url"`
	Anchor       string     `json:"anchor"`
	Rel          string     `json:"rel"`
	FirstSeen    *time.Time `json:"first_seen,omitempty"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	Country      string     `json:"country"`
	TLD          string     `json:"tld"`
}

// RefDomainItem is a referring domain normalized into the canonical shape.
type RefDomainItem struct {
	Domain         string     `json:"domain"`
	BacklinksCount int        `json:"backlinks_count"`
	FirstSeen      *time.Time `json:"first_seen,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	TLD            string     `json:"tld"`
	Country        string     `json:"country"`
}

// AnchorItem is an anchor text aggregate normalized into the canonical shape.
type AnchorItem struct {
	Anchor string `json:"anchor"`
	Count  int    `json:"count"`
	Type   string `json:"type"`
}

// Page is one paginated slice of results plus the provider's total.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// Provider fetches backlink data for a host. Every list operation is
// paginated by limit/offset; a page shorter than limit means end of data.
type Provider interface {
	Name() string
	FetchSummary(ctx context.Context, host string) (*Summary, error)
	FetchBacklinks(ctx context.Context, host string, limit, offset int) (*Page[BacklinkItem], error)
	FetchRefDomains(ctx context.Context, host string, limit, offset int) (*Page[RefDomainItem], error)
	FetchAnchors(ctx context.Context, host string, limit, offset int) (*Page[AnchorItem], error)
}
