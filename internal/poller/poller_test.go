package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streampulse/backend/internal/models"
)

type fakeViewerAPI struct {
	mu     sync.Mutex
	counts []int
	err    error
	calls  int
}

func (f *fakeViewerAPI) ViewerCount(ctx context.Context, twitchUserID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := f.counts[f.calls%len(f.counts)]
	f.calls++
	return n, nil
}

type fakeSampleStore struct {
	mu      sync.Mutex
	samples []int
	buckets []*models.ChatActivityBucket
}

func (f *fakeSampleStore) AppendAudienceSample(ctx context.Context, sessionID uuid.UUID, viewers int, sampledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, viewers)
	return nil
}

func (f *fakeSampleStore) RecentChatBuckets(ctx context.Context, sessionID uuid.UUID, n int) ([]*models.ChatActivityBucket, error) {
	return f.buckets, nil
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeBroadcaster) Broadcast(accountID uuid.UUID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type detectorCall struct {
	previous, current int
	buckets           []int
}

type fakeDetector struct {
	mu    sync.Mutex
	calls []detectorCall
}

func (f *fakeDetector) OnSample(ctx context.Context, account *models.Account, session *models.Session, previous, current int, buckets []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, detectorCall{previous, current, buckets})
}

func testPair() (*models.Account, *models.Session) {
	account := &models.Account{ID: uuid.New(), TwitchUserID: "123", Login: "streamer"}
	session := &models.Session{ID: uuid.New(), AccountID: account.ID, StartedAt: time.Now()}
	return account, session
}

func TestRunTickSkipsDetectorOnFirstSample(t *testing.T) {
	api := &fakeViewerAPI{counts: []int{100}}
	store := &fakeSampleStore{}
	hub := &fakeBroadcaster{}
	det := &fakeDetector{}
	account, session := testPair()
	p := NewPoller(account, session, api, store, hub, det, time.Minute, nil)

	p.runTick(context.Background())

	assert.Equal(t, []int{100}, store.samples)
	assert.Equal(t, []string{"viewers"}, hub.events)
	assert.Empty(t, det.calls, "no previous sample yet")
}

func TestRunTickFeedsDetectorConsecutivePairs(t *testing.T) {
	api := &fakeViewerAPI{counts: []int{100, 130}}
	store := &fakeSampleStore{buckets: []*models.ChatActivityBucket{
		{Messages: 80}, {Messages: 20},
	}}
	det := &fakeDetector{}
	account, session := testPair()
	p := NewPoller(account, session, api, store, nil, det, time.Minute, nil)

	p.runTick(context.Background())
	p.runTick(context.Background())

	require.Len(t, det.calls, 1)
	call := det.calls[0]
	assert.Equal(t, 100, call.previous)
	assert.Equal(t, 130, call.current)
	assert.Equal(t, []int{80, 20}, call.buckets)
}

func TestRunTickFailedFetchSkipsWholeTick(t *testing.T) {
	api := &fakeViewerAPI{counts: []int{100}}
	store := &fakeSampleStore{}
	det := &fakeDetector{}
	account, session := testPair()
	p := NewPoller(account, session, api, store, nil, det, time.Minute, nil)

	p.runTick(context.Background())

	api.err = errors.New("helix down")
	p.runTick(context.Background())
	assert.Len(t, store.samples, 1, "failed tick persists nothing")

	// recovery: previous is still the last good sample
	api.err = nil
	p.runTick(context.Background())
	require.Len(t, det.calls, 1)
	assert.Equal(t, 100, det.calls[0].previous)
}

func TestRegistryStartIsIdempotent(t *testing.T) {
	api := &fakeViewerAPI{counts: []int{10}}
	reg := NewRegistry(api, &fakeSampleStore{}, nil, nil, time.Hour, nil)
	account, session := testPair()

	reg.Start(account, session)
	reg.Start(account, session)
	assert.True(t, reg.Running(account.ID))

	reg.Stop(account.ID)
	assert.False(t, reg.Running(account.ID))

	// stopping again is a no-op
	reg.Stop(account.ID)
}

func TestRegistryTracksAccountsIndependently(t *testing.T) {
	api := &fakeViewerAPI{counts: []int{10}}
	reg := NewRegistry(api, &fakeSampleStore{}, nil, nil, time.Hour, nil)
	a1, s1 := testPair()
	a2, s2 := testPair()

	reg.Start(a1, s1)
	reg.Start(a2, s2)
	reg.Stop(a1.ID)

	assert.False(t, reg.Running(a1.ID))
	assert.True(t, reg.Running(a2.ID))
	reg.Stop(a2.ID)
}
