package models

import (
	"time"

	"github.com/google/uuid"
)

// Delta compares a run with the previous completed run of the same domain.
// PreviousRunID is nil for a domain's first run.
type Delta struct {
	ID             uuid.UUID  `json:"id"`
	DomainID       uuid.UUID  `json:"domain_id"`
	RunID          uuid.UUID  `json:"run_id"`
	PreviousRunID  *uuid.UUID `json:"previous_run_id"`
	NewLinks       int        `json:"new_links"`
	LostLinks      int        `json:"lost_links"`
	NewRefDomains  int        `json:"new_ref_domains"`
	LostRefDomains int        `json:"lost_ref_domains"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsFirstRun reports whether there was no baseline to compare against.
func (d *Delta) IsFirstRun() bool {
	return d.PreviousRunID == nil
}
