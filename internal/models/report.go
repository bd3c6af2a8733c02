package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionReport is the derived summary of one closed session, generated once
// by a background job.
type SessionReport struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	PeakViewers  int       `json:"peak_viewers"`
	AvgViewers   int       `json:"avg_viewers"`
	ChatMessages int       `json:"chat_messages"`
	MomentCount  int       `json:"moment_count"`
	ArtifactURL  string    `json:"artifact_url,omitempty"`
	GeneratedAt  time.Time `json:"generated_at"`
}
