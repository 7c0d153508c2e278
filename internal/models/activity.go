package models

import (
	"time"

	"github.com/google/uuid"
)

// Activity event names emitted by the pipeline.
const (
	EventRunStarted   = "backlinks.run.started"
	EventRunCompleted = "backlinks.run.completed"
	EventRunFailed    = "backlinks.run.failed"
)

// ActivityEvent is a structured pipeline event for observability and
// notification consumers.
type ActivityEvent struct {
	ID        uuid.UUID      `json:"id"`
	Event     string         `json:"event"`
	RunID     *uuid.UUID     `json:"run_id,omitempty"`
	DomainID  *uuid.UUID     `json:"domain_id,omitempty"`
	UserID    *uuid.UUID     `json:"user_id,omitempty"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
}
