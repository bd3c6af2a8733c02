package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a tracked Twitch channel with its OAuth credentials and
// per-account detection settings.
type Account struct {
	ID                uuid.UUID `json:"id"`
	TwitchUserID      string    `json:"twitch_user_id"`
	Login             string    `json:"login"`
	DisplayName       string    `json:"display_name"`
	AccessToken       string    `json:"-"`
	RefreshToken      string    `json:"-"`
	TokenExpiresAt    time.Time `json:"-"`
	TrackingEnabled   bool      `json:"tracking_enabled"`
	AutoClipEnabled   bool      `json:"auto_clip_enabled"`
	AutoClipThreshold int       `json:"auto_clip_threshold"`
	MaxAutoClips      int       `json:"max_auto_clips"`
	MomentTTLDays     int       `json:"moment_ttl_days"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
