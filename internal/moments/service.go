package moments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
)

// MomentStore is the subset of the repository the service needs.
type MomentStore interface {
	Create(ctx context.Context, accountID, sessionID uuid.UUID, label string, score int, detectedAt, expiresAt time.Time) (*models.Moment, error)
	CountAutoClippedBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
	MarkClipped(ctx context.Context, id uuid.UUID, clipID string, auto bool) (bool, error)
}

// Broadcaster pushes events to connected dashboards.
type Broadcaster interface {
	Broadcast(accountID uuid.UUID, event string, payload interface{})
}

// ClipCreator creates a clip on the platform. Optional; nil disables
// automatic clipping entirely.
type ClipCreator interface {
	CreateClip(ctx context.Context, account *models.Account) (string, error)
}

// Service runs the detector over incoming samples and owns the resulting
// moment records.
type Service struct {
	store          MomentStore
	hub            Broadcaster
	clips          ClipCreator
	defaultTTLDays int
	logger         *zap.Logger
}

// NewService creates a moment detection service.
func NewService(store MomentStore, hub Broadcaster, clips ClipCreator, defaultTTLDays int, logger *zap.Logger) *Service {
	if defaultTTLDays <= 0 {
		defaultTTLDays = 7
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, hub: hub, clips: clips, defaultTTLDays: defaultTTLDays, logger: logger}
}

// OnSample evaluates one audience sample pair. On a confirmed spike it
// records a pending moment, broadcasts it, and attempts the auto-clip
// action. Persistence failures are logged and never propagate to the
// calling poller.
func (s *Service) OnSample(ctx context.Context, account *models.Account, session *models.Session, previous, current int, buckets []int) {
	res := Detect(previous, current, buckets)
	if !res.Spike {
		return
	}
	momentsDetected.Inc()

	ttlDays := account.MomentTTLDays
	if ttlDays <= 0 {
		ttlDays = s.defaultTTLDays
	}
	now := time.Now()
	moment, err := s.store.Create(ctx, account.ID, session.ID, res.Label, res.Score, now, now.AddDate(0, 0, ttlDays))
	if err != nil {
		s.logger.Error("create moment failed", zap.Error(err),
			zap.String("session_id", session.ID.String()), zap.Int("score", res.Score))
		return
	}
	s.logger.Info("moment detected",
		zap.String("moment_id", moment.ID.String()),
		zap.String("label", moment.Label),
		zap.Int("score", moment.Score),
		zap.Int("previous", previous),
		zap.Int("current", current))
	if s.hub != nil {
		s.hub.Broadcast(account.ID, "moment", moment)
	}
	s.tryAutoClip(ctx, account, moment)
}

// tryAutoClip clips the moment automatically when the account opted in, the
// score clears its threshold, and the per-session cap is not exhausted.
// Failures are logged only; the moment stays pending for manual action.
func (s *Service) tryAutoClip(ctx context.Context, account *models.Account, moment *models.Moment) {
	if s.clips == nil || !account.AutoClipEnabled || moment.Score < account.AutoClipThreshold {
		return
	}
	clipped, err := s.store.CountAutoClippedBySession(ctx, moment.SessionID)
	if err != nil {
		s.logger.Warn("count auto clips failed", zap.Error(err), zap.String("session_id", moment.SessionID.String()))
		return
	}
	if clipped >= account.MaxAutoClips {
		return
	}
	clipID, err := s.clips.CreateClip(ctx, account)
	if err != nil {
		s.logger.Warn("auto clip failed", zap.Error(err), zap.String("moment_id", moment.ID.String()))
		return
	}
	ok, err := s.store.MarkClipped(ctx, moment.ID, clipID, true)
	if err != nil {
		s.logger.Warn("mark clipped failed", zap.Error(err), zap.String("moment_id", moment.ID.String()))
		return
	}
	if ok {
		momentsAutoClipped.Inc()
		moment.Status = models.MomentClipped
		moment.AutoClipped = true
		moment.ClipID = clipID
		if s.hub != nil {
			s.hub.Broadcast(account.ID, "moment_clipped", moment)
		}
	}
}
