package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/eventsub"
	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/twitch"
	"github.com/streampulse/backend/pkg/queue"
)

// AccountStore resolves tracked accounts.
type AccountStore interface {
	GetByTwitchUserID(ctx context.Context, twitchUserID string) (*models.Account, error)
	ListTracked(ctx context.Context) ([]*models.Account, error)
}

// SessionStore manages session rows.
type SessionStore interface {
	Create(ctx context.Context, accountID uuid.UUID, streamID, title, category string) (*models.Session, error)
	GetOpenByAccount(ctx context.Context, accountID uuid.UUID) (*models.Session, error)
	ListOpen(ctx context.Context) ([]*models.Session, error)
	Close(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) error
}

// FollowStore persists audience-growth events.
type FollowStore interface {
	AppendFollow(ctx context.Context, f *models.Follow) error
}

// StreamAPI enriches sessions with live stream metadata.
type StreamAPI interface {
	StreamByUserID(ctx context.Context, twitchUserID string) (*twitch.Stream, error)
}

// TaskRegistry starts and stops one kind of per-account background task.
// The poller and chat registries both implement it.
type TaskRegistry interface {
	Start(account *models.Account, session *models.Session)
	Stop(accountID uuid.UUID)
}

// Broadcaster pushes events to connected dashboards.
type Broadcaster interface {
	Broadcast(accountID uuid.UUID, event string, payload interface{})
}

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName string, jobType queue.JobType, payload interface{}) (string, error)
}

// SubscriptionEnsurer re-creates an account's missing webhook subscriptions.
// The eventsub manager implements it.
type SubscriptionEnsurer interface {
	EnsureAccount(ctx context.Context, account *models.Account)
}

// Handler reacts to platform notifications by opening and closing sessions
// and starting and stopping the per-account tasks that depend on them. It is
// the only component that mutates session lifecycle state.
type Handler struct {
	accounts AccountStore
	sessions SessionStore
	follows  FollowStore
	streams  StreamAPI
	tasks    []TaskRegistry
	hub      Broadcaster
	jobs     Enqueuer // nil when the queue is unavailable
	subs     SubscriptionEnsurer
	logger   *zap.Logger
}

// NewHandler creates the session lifecycle handler. jobs may be nil; report
// generation is then skipped with a log line.
func NewHandler(accounts AccountStore, sessions SessionStore, follows FollowStore, streams StreamAPI, tasks []TaskRegistry, hub Broadcaster, jobs Enqueuer, subs SubscriptionEnsurer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		accounts: accounts,
		sessions: sessions,
		follows:  follows,
		streams:  streams,
		tasks:    tasks,
		hub:      hub,
		jobs:     jobs,
		subs:     subs,
		logger:   logger,
	}
}

type streamOnlineEvent struct {
	ID                string `json:"id"`
	BroadcasterUserID string `json:"broadcaster_user_id"`
	Type              string `json:"type"`
	StartedAt         string `json:"started_at"`
}

type streamOfflineEvent struct {
	BroadcasterUserID string `json:"broadcaster_user_id"`
}

type followEvent struct {
	UserID            string `json:"user_id"`
	UserName          string `json:"user_name"`
	BroadcasterUserID string `json:"broadcaster_user_id"`
	FollowedAt        string `json:"followed_at"`
}

// HandleNotification dispatches one verified notification. Unknown
// subscription types are ignored.
func (h *Handler) HandleNotification(ctx context.Context, subType string, event json.RawMessage) {
	switch subType {
	case eventsub.TypeStreamOnline:
		var ev streamOnlineEvent
		if err := json.Unmarshal(event, &ev); err != nil {
			h.logger.Warn("malformed stream.online event", zap.Error(err))
			return
		}
		h.handleOnline(ctx, ev)
	case eventsub.TypeStreamOffline:
		var ev streamOfflineEvent
		if err := json.Unmarshal(event, &ev); err != nil {
			h.logger.Warn("malformed stream.offline event", zap.Error(err))
			return
		}
		h.handleOffline(ctx, ev.BroadcasterUserID)
	case eventsub.TypeChannelFollow:
		var ev followEvent
		if err := json.Unmarshal(event, &ev); err != nil {
			h.logger.Warn("malformed channel.follow event", zap.Error(err))
			return
		}
		h.handleFollow(ctx, ev)
	default:
		h.logger.Debug("ignoring notification", zap.String("type", subType))
	}
}

// HandleRevocation re-subscribes every event type for the affected account.
// Revocation of one subscription does not stop tracking; the manager fills
// whatever gap the platform just created.
func (h *Handler) HandleRevocation(ctx context.Context, twitchUserID string) {
	account, err := h.accounts.GetByTwitchUserID(ctx, twitchUserID)
	if err != nil || account == nil {
		return
	}
	h.logger.Warn("subscription revoked, re-ensuring", zap.String("login", account.Login))
	if h.subs != nil {
		h.subs.EnsureAccount(ctx, account)
	}
}

func (h *Handler) handleOnline(ctx context.Context, ev streamOnlineEvent) {
	account, err := h.accounts.GetByTwitchUserID(ctx, ev.BroadcasterUserID)
	if err != nil {
		h.logger.Error("lookup account failed", zap.Error(err), zap.String("twitch_user_id", ev.BroadcasterUserID))
		return
	}
	if account == nil || !account.TrackingEnabled {
		return
	}

	// Duplicate online notifications for an already-open session are no-ops.
	open, err := h.sessions.GetOpenByAccount(ctx, account.ID)
	if err != nil {
		h.logger.Error("lookup open session failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		return
	}
	if open != nil {
		h.startTasks(account, open)
		return
	}

	var title, category string
	if h.streams != nil {
		if s, err := h.streams.StreamByUserID(ctx, account.TwitchUserID); err != nil {
			h.logger.Warn("stream metadata fetch failed", zap.Error(err), zap.String("login", account.Login))
		} else if s != nil {
			title, category = s.Title, s.GameName
		}
	}

	session, err := h.sessions.Create(ctx, account.ID, ev.ID, title, category)
	if err != nil {
		h.logger.Error("create session failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		return
	}
	h.logger.Info("session started",
		zap.String("account_id", account.ID.String()),
		zap.String("session_id", session.ID.String()),
		zap.String("login", account.Login))

	h.startTasks(account, session)
	if h.hub != nil {
		h.hub.Broadcast(account.ID, "session_started", map[string]interface{}{
			"session_id": session.ID,
			"title":      title,
			"category":   category,
			"started_at": session.StartedAt.Unix(),
		})
	}
}

func (h *Handler) handleOffline(ctx context.Context, twitchUserID string) {
	account, err := h.accounts.GetByTwitchUserID(ctx, twitchUserID)
	if err != nil {
		h.logger.Error("lookup account failed", zap.Error(err), zap.String("twitch_user_id", twitchUserID))
		return
	}
	if account == nil {
		return
	}

	// Stop tasks before closing so no sample lands after ended_at.
	h.stopTasks(account.ID)

	session, err := h.sessions.GetOpenByAccount(ctx, account.ID)
	if err != nil {
		h.logger.Error("lookup open session failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		return
	}
	if session == nil {
		return
	}
	endedAt := time.Now()
	if err := h.sessions.Close(ctx, session.ID, endedAt); err != nil {
		h.logger.Error("close session failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		return
	}
	h.logger.Info("session ended",
		zap.String("account_id", account.ID.String()),
		zap.String("session_id", session.ID.String()))

	if h.hub != nil {
		h.hub.Broadcast(account.ID, "session_ended", map[string]interface{}{
			"session_id": session.ID,
			"ended_at":   endedAt.Unix(),
		})
	}
	h.enqueueReport(ctx, account.ID, session.ID)
}

func (h *Handler) handleFollow(ctx context.Context, ev followEvent) {
	account, err := h.accounts.GetByTwitchUserID(ctx, ev.BroadcasterUserID)
	if err != nil || account == nil {
		return
	}
	f := &models.Follow{
		AccountID:  account.ID,
		FollowerID: ev.UserID,
		Follower:   ev.UserName,
		FollowedAt: time.Now(),
	}
	if at, err := time.Parse(time.RFC3339, ev.FollowedAt); err == nil {
		f.FollowedAt = at
	}
	if session, err := h.sessions.GetOpenByAccount(ctx, account.ID); err == nil && session != nil {
		f.SessionID = &session.ID
	}
	if err := h.follows.AppendFollow(ctx, f); err != nil {
		h.logger.Warn("persist follow failed", zap.Error(err), zap.String("account_id", account.ID.String()))
	}
	if h.hub != nil {
		h.hub.Broadcast(account.ID, "follow", map[string]interface{}{
			"follower":    f.Follower,
			"follower_id": f.FollowerID,
			"followed_at": f.FollowedAt.Unix(),
		})
	}
}

// ResumeOpenSessions runs at startup: sessions left open by a previous
// instance either get their tasks restarted (channel still live) or are
// closed (channel went offline while we were down).
func (h *Handler) ResumeOpenSessions(ctx context.Context) error {
	open, err := h.sessions.ListOpen(ctx)
	if err != nil {
		return err
	}
	accounts, err := h.accounts.ListTracked(ctx)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]*models.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	for _, session := range open {
		account := byID[session.AccountID]
		if account == nil {
			// Tracking was disabled while we were down; close the orphan.
			if err := h.sessions.Close(ctx, session.ID, time.Now()); err != nil {
				h.logger.Error("close orphaned session failed", zap.Error(err), zap.String("session_id", session.ID.String()))
			}
			continue
		}
		var live *twitch.Stream
		if h.streams != nil {
			live, err = h.streams.StreamByUserID(ctx, account.TwitchUserID)
			if err != nil {
				h.logger.Warn("resume liveness check failed, keeping session open",
					zap.Error(err), zap.String("login", account.Login))
				h.startTasks(account, session)
				continue
			}
		}
		if live != nil {
			h.logger.Info("resuming live session",
				zap.String("session_id", session.ID.String()),
				zap.String("login", account.Login))
			h.startTasks(account, session)
			continue
		}
		h.logger.Info("closing stale session",
			zap.String("session_id", session.ID.String()),
			zap.String("login", account.Login))
		if err := h.sessions.Close(ctx, session.ID, time.Now()); err != nil {
			h.logger.Error("close stale session failed", zap.Error(err), zap.String("session_id", session.ID.String()))
			continue
		}
		h.enqueueReport(ctx, account.ID, session.ID)
	}
	return nil
}

// StopAll stops every registered task kind for every tracked account.
// Called on shutdown; sessions stay open for the next instance to resume.
func (h *Handler) StopAll(ctx context.Context) {
	open, err := h.sessions.ListOpen(ctx)
	if err != nil {
		h.logger.Error("list open sessions failed", zap.Error(err))
		return
	}
	for _, s := range open {
		h.stopTasks(s.AccountID)
	}
}

func (h *Handler) startTasks(account *models.Account, session *models.Session) {
	for _, t := range h.tasks {
		t.Start(account, session)
	}
}

func (h *Handler) stopTasks(accountID uuid.UUID) {
	for _, t := range h.tasks {
		t.Stop(accountID)
	}
}

// enqueueReport schedules report generation for a closed session. Queue
// unavailability degrades to a log line; the session close itself never
// fails on it.
func (h *Handler) enqueueReport(ctx context.Context, accountID, sessionID uuid.UUID) {
	if h.jobs == nil {
		h.logger.Warn("job queue unavailable, skipping report", zap.String("session_id", sessionID.String()))
		return
	}
	jobID, err := h.jobs.Enqueue(ctx, queue.QueueReports, queue.JobTypeReportGenerate, queue.ReportGeneratePayload{
		AccountID: accountID,
		SessionID: sessionID,
	})
	if err != nil {
		h.logger.Warn("enqueue report failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		return
	}
	h.logger.Info("report job enqueued", zap.String("job_id", jobID), zap.String("session_id", sessionID.String()))
}
