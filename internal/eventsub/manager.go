package eventsub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/twitch"
)

// Subscription types this core tracks per account.
const (
	TypeStreamOnline  = "stream.online"
	TypeStreamOffline = "stream.offline"
	TypeChannelFollow = "channel.follow"
)

// SubscriptionTypes is the full set ensured for every tracked account.
var SubscriptionTypes = []string{TypeStreamOnline, TypeStreamOffline, TypeChannelFollow}

const (
	enabledStatus = "enabled"
	pendingStatus = "webhook_callback_verification_pending"
)

// API is the subset of the platform client the manager needs.
type API interface {
	ListSubscriptions(ctx context.Context) ([]*twitch.Subscription, error)
	CreateSubscription(ctx context.Context, subType string, condition map[string]string, callback, secret string) error
	DeleteSubscription(ctx context.Context, id string) error
}

// AccountLister lists accounts whose subscriptions the manager maintains.
type AccountLister interface {
	ListTracked(ctx context.Context) ([]*models.Account, error)
}

// Manager keeps the platform's push-notification subscriptions in line with
// the tracked account set. The platform's list endpoint is treated as ground
// truth; nothing is cached across passes.
type Manager struct {
	api      API
	accounts AccountLister
	callback string
	secret   string
	logger   *zap.Logger
}

// NewManager creates a subscription manager.
func NewManager(api API, accounts AccountLister, callback, secret string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{api: api, accounts: accounts, callback: callback, secret: secret, logger: logger}
}

// conditionFor derives the event-type-specific condition payload, so callers
// only ever supply the account.
func conditionFor(subType, twitchUserID string) map[string]string {
	switch subType {
	case TypeChannelFollow:
		return map[string]string{
			"broadcaster_user_id": twitchUserID,
			"moderator_user_id":   twitchUserID,
		}
	default:
		return map[string]string{"broadcaster_user_id": twitchUserID}
	}
}

// EnsureAccount guarantees one enabled subscription per event type exists
// for the account, creating any that are absent. A creation failure for one
// type does not abort creation of the others.
func (m *Manager) EnsureAccount(ctx context.Context, account *models.Account) {
	existing, err := m.api.ListSubscriptions(ctx)
	if err != nil {
		m.logger.Warn("list subscriptions failed", zap.Error(err), zap.String("account_id", account.ID.String()))
		return
	}
	have := make(map[string]bool)
	for _, s := range existing {
		// A sub still awaiting callback verification is on its way to
		// enabled; re-creating it would just draw a 409.
		if s.Status != enabledStatus && s.Status != pendingStatus {
			continue
		}
		if s.BroadcasterID == account.TwitchUserID && s.Callback == m.callback {
			have[s.Type] = true
		}
	}
	for _, subType := range SubscriptionTypes {
		if have[subType] {
			continue
		}
		cond := conditionFor(subType, account.TwitchUserID)
		if err := m.api.CreateSubscription(ctx, subType, cond, m.callback, m.secret); err != nil {
			m.logger.Warn("create subscription failed",
				zap.Error(err), zap.String("type", subType), zap.String("account_id", account.ID.String()))
			continue
		}
		m.logger.Info("subscription created", zap.String("type", subType), zap.String("twitch_user_id", account.TwitchUserID))
	}
}

// EnsureAll runs EnsureAccount for every tracked account.
func (m *Manager) EnsureAll(ctx context.Context) {
	list, err := m.accounts.ListTracked(ctx)
	if err != nil {
		m.logger.Warn("list tracked accounts failed", zap.Error(err))
		return
	}
	for _, a := range list {
		m.EnsureAccount(ctx, a)
	}
}

// Reconcile lists all subscriptions and prunes them: entries that are not
// enabled or already expired are deleted, and within each
// (type, broadcaster, callback) group only the entry with the furthest
// future expiry is kept.
func (m *Manager) Reconcile(ctx context.Context) error {
	subs, err := m.api.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	now := time.Now()

	type groupKey struct {
		subType, broadcaster, callback string
	}
	keepers := make(map[groupKey]*twitch.Subscription)
	var doomed []*twitch.Subscription

	for _, s := range subs {
		if s.Status != enabledStatus || (!s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)) {
			doomed = append(doomed, s)
			continue
		}
		key := groupKey{s.Type, s.BroadcasterID, s.Callback}
		cur, ok := keepers[key]
		if !ok {
			keepers[key] = s
			continue
		}
		if s.ExpiresAt.After(cur.ExpiresAt) {
			doomed = append(doomed, cur)
			keepers[key] = s
		} else {
			doomed = append(doomed, s)
		}
	}

	for _, s := range doomed {
		if err := m.api.DeleteSubscription(ctx, s.ID); err != nil {
			m.logger.Warn("delete subscription failed", zap.Error(err), zap.String("subscription_id", s.ID))
			continue
		}
		m.logger.Info("subscription pruned",
			zap.String("subscription_id", s.ID), zap.String("type", s.Type), zap.String("status", s.Status))
	}
	return nil
}

// Run reconciles once at startup and then keeps subscriptions converged:
// ensure on a short period, reconcile on a long one. Blocks until ctx is done.
func (m *Manager) Run(ctx context.Context, ensureEvery, reconcileEvery time.Duration) {
	if err := m.Reconcile(ctx); err != nil {
		m.logger.Warn("startup reconcile failed", zap.Error(err))
	}
	m.EnsureAll(ctx)

	ensureTicker := time.NewTicker(ensureEvery)
	reconcileTicker := time.NewTicker(reconcileEvery)
	defer ensureTicker.Stop()
	defer reconcileTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ensureTicker.C:
			m.EnsureAll(ctx)
		case <-reconcileTicker.C:
			if err := m.Reconcile(ctx); err != nil {
				m.logger.Warn("reconcile failed", zap.Error(err))
			}
		}
	}
}
