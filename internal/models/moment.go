package models

import (
	"time"

	"github.com/google/uuid"
)

// MomentStatus is the lifecycle state of a detected moment.
// pending -> clipped | rejected | expired; terminal states never change.
type MomentStatus string

const (
	MomentPending  MomentStatus = "pending"
	MomentClipped  MomentStatus = "clipped"
	MomentRejected MomentStatus = "rejected"
	MomentExpired  MomentStatus = "expired"
)

// Terminal reports whether a status permits no further transitions.
func (s MomentStatus) Terminal() bool { return s != MomentPending }

// Moment is a detected, scorable point-in-time event of interest during a
// session.
type Moment struct {
	ID          uuid.UUID    `json:"id"`
	AccountID   uuid.UUID    `json:"account_id"`
	SessionID   uuid.UUID    `json:"session_id"`
	Label       string       `json:"label"`
	Score       int          `json:"score"`
	Status      MomentStatus `json:"status"`
	AutoClipped bool         `json:"auto_clipped"`
	ClipID      string       `json:"clip_id,omitempty"`
	DetectedAt  time.Time    `json:"detected_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
