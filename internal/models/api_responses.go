package models

import "github.com/google/uuid"

// CreateDomainRequest registers a domain for backlink audits.
type CreateDomainRequest struct {
	UserID           uuid.UUID    `json:"user_id" validate:"required"`
	Host             string       `json:"host" validate:"required,hostname_rfc1123"`
	Settings         *RunSettings `json:"settings,omitempty"`
	BacklinksEnabled *bool        `json:"backlinks_enabled,omitempty"`
}

// EnqueueRunRequest queues a run, optionally overriding the domain settings.
type EnqueueRunRequest struct {
	Provider string       `json:"provider,omitempty"`
	Settings *RunSettings `json:"settings,omitempty"`
}

// ActionRequest is an operator override of a backlink's action status.
type ActionRequest struct {
	ActionStatus string `json:"action_status" validate:"required,oneof=keep review remove disavow"`
}

// BacklinkFilter narrows a run's backlink listing.
type BacklinkFilter struct {
	Action string
	Limit  int
	Offset int
}

// RunDetailResponse is a run together with its delta, if computed.
type RunDetailResponse struct {
	Run   *Run   `json:"run"`
	Delta *Delta `json:"delta,omitempty"`
}

// RefDomainAggregateResponse is a cross-run referring domain with derived
// ratios.
type RefDomainAggregateResponse struct {
	BacklinkRefDomain
	FollowRatio float64 `json:"follow_ratio"`
}
