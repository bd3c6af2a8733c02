package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streampulse/backend/internal/eventsub"
	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/twitch"
	"github.com/streampulse/backend/pkg/queue"
)

type fakeAccounts struct {
	byTwitchID map[string]*models.Account
}

func (f *fakeAccounts) GetByTwitchUserID(ctx context.Context, twitchUserID string) (*models.Account, error) {
	return f.byTwitchID[twitchUserID], nil
}

func (f *fakeAccounts) ListTracked(ctx context.Context) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range f.byTwitchID {
		out = append(out, a)
	}
	return out, nil
}

type fakeSessions struct {
	open    map[uuid.UUID]*models.Session
	closed  []uuid.UUID
	created int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{open: make(map[uuid.UUID]*models.Session)}
}

func (f *fakeSessions) Create(ctx context.Context, accountID uuid.UUID, streamID, title, category string) (*models.Session, error) {
	f.created++
	s := &models.Session{
		ID:             uuid.New(),
		AccountID:      accountID,
		TwitchStreamID: streamID,
		Title:          title,
		Category:       category,
		StartedAt:      time.Now(),
	}
	f.open[accountID] = s
	return s, nil
}

func (f *fakeSessions) GetOpenByAccount(ctx context.Context, accountID uuid.UUID) (*models.Session, error) {
	return f.open[accountID], nil
}

func (f *fakeSessions) ListOpen(ctx context.Context) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range f.open {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSessions) Close(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) error {
	for accountID, s := range f.open {
		if s.ID == sessionID {
			s.EndedAt = &endedAt
			f.closed = append(f.closed, sessionID)
			delete(f.open, accountID)
			return nil
		}
	}
	return nil
}

type fakeFollows struct {
	follows []*models.Follow
}

func (f *fakeFollows) AppendFollow(ctx context.Context, follow *models.Follow) error {
	f.follows = append(f.follows, follow)
	return nil
}

type fakeStreams struct {
	live map[string]*twitch.Stream
}

func (f *fakeStreams) StreamByUserID(ctx context.Context, twitchUserID string) (*twitch.Stream, error) {
	return f.live[twitchUserID], nil
}

type fakeTasks struct {
	started []uuid.UUID
	stopped []uuid.UUID
}

func (f *fakeTasks) Start(account *models.Account, session *models.Session) {
	f.started = append(f.started, account.ID)
}

func (f *fakeTasks) Stop(accountID uuid.UUID) {
	f.stopped = append(f.stopped, accountID)
}

type fakeHub struct {
	events []string
}

func (f *fakeHub) Broadcast(accountID uuid.UUID, event string, payload interface{}) {
	f.events = append(f.events, event)
}

type fakeEnqueuer struct {
	jobs []queue.JobType
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, queueName string, jobType queue.JobType, payload interface{}) (string, error) {
	f.jobs = append(f.jobs, jobType)
	return uuid.New().String(), nil
}

type fakeEnsurer struct {
	ensured []string
}

func (f *fakeEnsurer) EnsureAccount(ctx context.Context, account *models.Account) {
	f.ensured = append(f.ensured, account.TwitchUserID)
}

type fixture struct {
	accounts *fakeAccounts
	sessions *fakeSessions
	follows  *fakeFollows
	streams  *fakeStreams
	tasks    *fakeTasks
	hub      *fakeHub
	jobs     *fakeEnqueuer
	subs     *fakeEnsurer
	handler  *Handler
	account  *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	account := &models.Account{
		ID:              uuid.New(),
		TwitchUserID:    "123",
		Login:           "streamer",
		TrackingEnabled: true,
	}
	f := &fixture{
		accounts: &fakeAccounts{byTwitchID: map[string]*models.Account{"123": account}},
		sessions: newFakeSessions(),
		follows:  &fakeFollows{},
		streams:  &fakeStreams{live: make(map[string]*twitch.Stream)},
		tasks:    &fakeTasks{},
		hub:      &fakeHub{},
		jobs:     &fakeEnqueuer{},
		subs:     &fakeEnsurer{},
		account:  account,
	}
	f.handler = NewHandler(f.accounts, f.sessions, f.follows, f.streams,
		[]TaskRegistry{f.tasks}, f.hub, f.jobs, f.subs, nil)
	return f
}

func onlineEvent(streamID string) json.RawMessage {
	return json.RawMessage(`{"id":"` + streamID + `","broadcaster_user_id":"123","type":"live"}`)
}

var offlineEvent = json.RawMessage(`{"broadcaster_user_id":"123"}`)

func TestOnlineOpensSessionAndStartsTasks(t *testing.T) {
	f := newFixture(t)
	f.streams.live["123"] = &twitch.Stream{Title: "speedrun", GameName: "Celeste"}

	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))

	require.Equal(t, 1, f.sessions.created)
	session := f.sessions.open[f.account.ID]
	require.NotNil(t, session)
	assert.Equal(t, "s1", session.TwitchStreamID)
	assert.Equal(t, "speedrun", session.Title)
	assert.Equal(t, "Celeste", session.Category)
	assert.Equal(t, []uuid.UUID{f.account.ID}, f.tasks.started)
	assert.Equal(t, []string{"session_started"}, f.hub.events)
}

func TestDuplicateOnlineIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))

	assert.Equal(t, 1, f.sessions.created)
	assert.Equal(t, []string{"session_started"}, f.hub.events)
}

func TestOnlineIgnoresUntrackedAccounts(t *testing.T) {
	f := newFixture(t)
	f.account.TrackingEnabled = false

	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))

	assert.Zero(t, f.sessions.created)
	assert.Empty(t, f.tasks.started)
}

func TestOfflineClosesSessionAndEnqueuesReport(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))
	sessionID := f.sessions.open[f.account.ID].ID

	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOffline, offlineEvent)

	assert.Equal(t, []uuid.UUID{sessionID}, f.sessions.closed)
	assert.Equal(t, []uuid.UUID{f.account.ID}, f.tasks.stopped)
	assert.Equal(t, []string{"session_started", "session_ended"}, f.hub.events)
	assert.Equal(t, []queue.JobType{queue.JobTypeReportGenerate}, f.jobs.jobs)
}

func TestOfflineWithoutOpenSessionOnlyStopsTasks(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOffline, offlineEvent)

	assert.Empty(t, f.sessions.closed)
	assert.Equal(t, []uuid.UUID{f.account.ID}, f.tasks.stopped)
	assert.Empty(t, f.jobs.jobs)
}

func TestOfflineWithNilQueueSkipsReport(t *testing.T) {
	f := newFixture(t)
	f.handler = NewHandler(f.accounts, f.sessions, f.follows, f.streams,
		[]TaskRegistry{f.tasks}, f.hub, nil, nil, nil)
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))

	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOffline, offlineEvent)

	assert.Len(t, f.sessions.closed, 1, "session closes even without a queue")
}

func TestFollowTagsOpenSession(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))
	sessionID := f.sessions.open[f.account.ID].ID

	ev := json.RawMessage(`{"user_id":"777","user_name":"viewer1","broadcaster_user_id":"123","followed_at":"2025-06-01T12:00:00Z"}`)
	f.handler.HandleNotification(context.Background(), eventsub.TypeChannelFollow, ev)

	require.Len(t, f.follows.follows, 1)
	follow := f.follows.follows[0]
	assert.Equal(t, "viewer1", follow.Follower)
	require.NotNil(t, follow.SessionID)
	assert.Equal(t, sessionID, *follow.SessionID)
	assert.Contains(t, f.hub.events, "follow")
}

func TestFollowOffStreamHasNoSession(t *testing.T) {
	f := newFixture(t)

	ev := json.RawMessage(`{"user_id":"777","user_name":"viewer1","broadcaster_user_id":"123","followed_at":"2025-06-01T12:00:00Z"}`)
	f.handler.HandleNotification(context.Background(), eventsub.TypeChannelFollow, ev)

	require.Len(t, f.follows.follows, 1)
	assert.Nil(t, f.follows.follows[0].SessionID)
}

func TestRevocationResubscribesAccount(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))

	f.handler.HandleRevocation(context.Background(), "123")

	assert.Equal(t, []string{"123"}, f.subs.ensured)
	assert.Empty(t, f.sessions.closed, "revocation does not end the session")
	assert.Empty(t, f.tasks.stopped)
}

func TestRevocationForUnknownAccountIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleRevocation(context.Background(), "999")

	assert.Empty(t, f.subs.ensured)
}

func TestUnknownNotificationTypeIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.handler.HandleNotification(context.Background(), "channel.raid", json.RawMessage(`{}`))

	assert.Zero(t, f.sessions.created)
	assert.Empty(t, f.hub.events)
}

func TestResumeRestartsTasksForStillLiveSessions(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))
	f.tasks.started = nil
	f.streams.live["123"] = &twitch.Stream{ID: "s1"}

	require.NoError(t, f.handler.ResumeOpenSessions(context.Background()))

	assert.Equal(t, []uuid.UUID{f.account.ID}, f.tasks.started)
	assert.Empty(t, f.sessions.closed)
}

func TestResumeClosesStaleSessionsAndEnqueuesReports(t *testing.T) {
	f := newFixture(t)
	f.handler.HandleNotification(context.Background(), eventsub.TypeStreamOnline, onlineEvent("s1"))
	f.tasks.started = nil
	f.jobs.jobs = nil
	// channel went offline while we were down

	require.NoError(t, f.handler.ResumeOpenSessions(context.Background()))

	assert.Len(t, f.sessions.closed, 1)
	assert.Empty(t, f.tasks.started)
	assert.Equal(t, []queue.JobType{queue.JobTypeReportGenerate}, f.jobs.jobs)
}
