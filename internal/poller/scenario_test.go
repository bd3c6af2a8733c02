package poller

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/moments"
	"github.com/streampulse/backend/internal/realtime"
)

type scenarioMomentStore struct {
	created []*models.Moment
}

func (s *scenarioMomentStore) Create(ctx context.Context, accountID, sessionID uuid.UUID, label string, score int, detectedAt, expiresAt time.Time) (*models.Moment, error) {
	m := &models.Moment{
		ID:         uuid.New(),
		AccountID:  accountID,
		SessionID:  sessionID,
		Label:      label,
		Score:      score,
		Status:     models.MomentPending,
		DetectedAt: detectedAt,
		ExpiresAt:  expiresAt,
	}
	s.created = append(s.created, m)
	return m, nil
}

func (s *scenarioMomentStore) CountAutoClippedBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return 0, nil
}

func (s *scenarioMomentStore) MarkClipped(ctx context.Context, id uuid.UUID, clipID string, auto bool) (bool, error) {
	return true, nil
}

// Two poll ticks through the real detector and hub: the first sample has no
// baseline and detects nothing, the second has a qualifying jump and a
// subscriber sees the resulting moment.
func TestScenarioSpikeReachesSubscriber(t *testing.T) {
	account, session := testPair()
	hub := realtime.NewHub(nil, nil, nil)
	sub := hub.Register(account.ID)
	defer hub.Unregister(sub)

	store := &fakeSampleStore{}
	momentStore := &scenarioMomentStore{}
	detector := moments.NewService(momentStore, hub, nil, 7, nil)

	api := &fakeViewerAPI{counts: []int{100, 130}}
	p := NewPoller(account, session, api, store, hub, detector, time.Minute, nil)

	p.runTick(context.Background())
	assert.Empty(t, momentStore.created, "first sample has no baseline")

	p.runTick(context.Background())
	require.Len(t, momentStore.created, 1)
	moment := momentStore.created[0]
	assert.Equal(t, 60, moment.Score)
	assert.Equal(t, models.MomentPending, moment.Status)

	var names []string
	for {
		select {
		case ev := <-sub.Events():
			names = append(names, ev.Name)
			continue
		default:
		}
		break
	}
	assert.Equal(t, []string{"viewers", "viewers", "moment"}, names)
}
