package models

import (
	"time"

	"github.com/google/uuid"
)

// Domain is an audited site owned by a user.
type Domain struct {
	ID               uuid.UUID   `json:"id"`
	UserID           uuid.UUID   `json:"user_id"`
	Host             string      `json:"host"`
	Settings         RunSettings `json:"settings"`
	BacklinksEnabled bool        `json:"backlinks_enabled"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
