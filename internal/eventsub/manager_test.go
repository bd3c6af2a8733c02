package eventsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/twitch"
)

type fakeAPI struct {
	subs      []*twitch.Subscription
	created   []string
	deleted   []string
	listErr   error
	createErr error
}

func (f *fakeAPI) ListSubscriptions(ctx context.Context) ([]*twitch.Subscription, error) {
	return f.subs, f.listErr
}

func (f *fakeAPI) CreateSubscription(ctx context.Context, subType string, condition map[string]string, callback, secret string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, subType)
	return nil
}

func (f *fakeAPI) DeleteSubscription(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeAccounts struct {
	list []*models.Account
}

func (f *fakeAccounts) ListTracked(ctx context.Context) ([]*models.Account, error) {
	return f.list, nil
}

func TestEnsureAccountCreatesMissingTypes(t *testing.T) {
	api := &fakeAPI{subs: []*twitch.Subscription{
		{ID: "a", Type: TypeStreamOnline, Status: "enabled", BroadcasterID: "123", Callback: "https://cb"},
	}}
	m := NewManager(api, &fakeAccounts{}, "https://cb", "sec", nil)

	m.EnsureAccount(context.Background(), &models.Account{TwitchUserID: "123"})

	assert.ElementsMatch(t, []string{TypeStreamOffline, TypeChannelFollow}, api.created)
}

func TestEnsureAccountCountsPendingVerification(t *testing.T) {
	// A freshly created sub sits in verification-pending for a while;
	// re-creating it every ensure pass would only collect 409s.
	api := &fakeAPI{subs: []*twitch.Subscription{
		{ID: "a", Type: TypeStreamOnline, Status: "webhook_callback_verification_pending", BroadcasterID: "123", Callback: "https://cb"},
		{ID: "b", Type: TypeStreamOffline, Status: "enabled", BroadcasterID: "123", Callback: "https://cb"},
	}}
	m := NewManager(api, &fakeAccounts{}, "https://cb", "sec", nil)

	m.EnsureAccount(context.Background(), &models.Account{TwitchUserID: "123"})

	assert.Equal(t, []string{TypeChannelFollow}, api.created)
}

func TestEnsureAccountIgnoresOtherCallbacks(t *testing.T) {
	// A subscription pointing at a different deployment does not satisfy ours.
	api := &fakeAPI{subs: []*twitch.Subscription{
		{ID: "a", Type: TypeStreamOnline, Status: "enabled", BroadcasterID: "123", Callback: "https://elsewhere"},
	}}
	m := NewManager(api, &fakeAccounts{}, "https://cb", "sec", nil)

	m.EnsureAccount(context.Background(), &models.Account{TwitchUserID: "123"})

	assert.ElementsMatch(t, []string{TypeStreamOnline, TypeStreamOffline, TypeChannelFollow}, api.created)
}

func TestEnsureAccountContinuesPastCreateFailure(t *testing.T) {
	api := &fakeAPI{createErr: errors.New("boom")}
	m := NewManager(api, &fakeAccounts{}, "https://cb", "sec", nil)

	m.EnsureAccount(context.Background(), &models.Account{TwitchUserID: "123"})

	assert.Empty(t, api.created)
}

func TestReconcileKeepsLatestExpiry(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{subs: []*twitch.Subscription{
		{ID: "t1", Type: TypeStreamOnline, Status: "enabled", BroadcasterID: "123", Callback: "https://cb", ExpiresAt: now.Add(1 * time.Hour)},
		{ID: "t2", Type: TypeStreamOnline, Status: "enabled", BroadcasterID: "123", Callback: "https://cb", ExpiresAt: now.Add(2 * time.Hour)},
		{ID: "t3", Type: TypeStreamOnline, Status: "enabled", BroadcasterID: "123", Callback: "https://cb", ExpiresAt: now.Add(3 * time.Hour)},
	}}
	m := NewManager(api, &fakeAccounts{}, "https://cb", "sec", nil)

	require.NoError(t, m.Reconcile(context.Background()))

	assert.ElementsMatch(t, []string{"t1", "t2"}, api.deleted)
}

func TestReconcileDeletesDisabledAndExpired(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{subs: []*twitch.Subscription{
		{ID: "ok", Type: TypeStreamOnline, Status: "enabled", BroadcasterID: "123", Callback: "https://cb", ExpiresAt: now.Add(time.Hour)},
		{ID: "revoked", Type: TypeStreamOffline, Status: "authorization_revoked", BroadcasterID: "123", Callback: "https://cb"},
		{ID: "stale", Type: TypeChannelFollow, Status: "enabled", BroadcasterID: "123", Callback: "https://cb", ExpiresAt: now.Add(-time.Minute)},
	}}
	m := NewManager(api, &fakeAccounts{}, "https://cb", "sec", nil)

	require.NoError(t, m.Reconcile(context.Background()))

	assert.ElementsMatch(t, []string{"revoked", "stale"}, api.deleted)
}

func TestConditionForFollowIncludesModerator(t *testing.T) {
	cond := conditionFor(TypeChannelFollow, "42")
	assert.Equal(t, "42", cond["broadcaster_user_id"])
	assert.Equal(t, "42", cond["moderator_user_id"])

	online := conditionFor(TypeStreamOnline, "42")
	assert.Equal(t, map[string]string{"broadcaster_user_id": "42"}, online)
}
