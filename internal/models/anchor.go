package models

import "github.com/google/uuid"

// Anchor type constants
const (
	AnchorExact   = "exact"
	AnchorPartial = "partial"
	AnchorBrand   = "brand"
	AnchorGeneric = "generic"
	AnchorURL     = "url"
	AnchorEmpty   = "empty"
)

// AnchorSummary aggregates anchor text occurrences within a run.
type AnchorSummary struct {
	ID         int64     `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	Anchor     string    `json:"anchor"`
	AnchorHash string    `json:"anchor_hash"`
	Count      int       `json:"count"`
	Type       string    `json:"type"`
}
