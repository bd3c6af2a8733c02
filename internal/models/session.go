package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one contiguous broadcast period for an account.
type Session struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       uuid.UUID  `json:"account_id"`
	TwitchStreamID  string     `json:"twitch_stream_id"`
	Title           string     `json:"title"`
	Category        string     `json:"category"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Live reports whether the session has no end timestamp yet.
func (s *Session) Live() bool { return s.EndedAt == nil }
