package models

import (
	"time"

	"github.com/google/uuid"
)

// AudienceSample is one viewer-count reading for a session, appended at a
// fixed cadence by the viewer poller.
type AudienceSample struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Viewers   int       `json:"viewers"`
	SampledAt time.Time `json:"sampled_at"`
}

// ChatActivityBucket is the message count for one 60-second window of a
// session, written once per window close.
type ChatActivityBucket struct {
	ID          uuid.UUID `json:"id"`
	SessionID   uuid.UUID `json:"session_id"`
	BucketStart time.Time `json:"bucket_start"`
	Messages    int       `json:"messages"`
}

// ChatMessageSample is a fixed-fraction random sample of raw chat, kept for
// downstream analytics. Only non-bot senders are sampled.
type ChatMessageSample struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"` // truncated
	EmoteOnly bool      `json:"emote_only"`
	Sentiment int       `json:"sentiment"` // -1, 0 or 1
	SentAt    time.Time `json:"sent_at"`
}

// Follow is an audience-growth event delivered by the platform.
type Follow struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
	FollowerID string     `json:"follower_id"`
	Follower   string     `json:"follower"`
	FollowedAt time.Time  `json:"followed_at"`
}
