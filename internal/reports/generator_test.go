package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/telemetry"
)

type fakeSessions struct {
	session *models.Session
}

func (f *fakeSessions) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	if f.session != nil && f.session.ID == id {
		return f.session, nil
	}
	return nil, nil
}

type fakeTelemetry struct {
	agg *telemetry.SessionAggregates
	err error
}

func (f *fakeTelemetry) AggregateSession(ctx context.Context, sessionID uuid.UUID) (*telemetry.SessionAggregates, error) {
	return f.agg, f.err
}

func (f *fakeTelemetry) AudienceSamples(ctx context.Context, sessionID uuid.UUID) ([]*models.AudienceSample, error) {
	return nil, nil
}

type fakeMoments struct {
	count int
}

func (f *fakeMoments) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return f.count, nil
}

type fakeReportStore struct {
	inserted *models.SessionReport
}

func (f *fakeReportStore) Insert(ctx context.Context, rep *models.SessionReport) (*models.SessionReport, error) {
	rep.ID = uuid.New()
	rep.GeneratedAt = time.Now()
	f.inserted = rep
	return rep, nil
}

func TestGenerateBuildsReportFromAggregates(t *testing.T) {
	accountID := uuid.New()
	session := &models.Session{ID: uuid.New(), AccountID: accountID}
	store := &fakeReportStore{}
	gen := NewGenerator(
		&fakeSessions{session: session},
		&fakeTelemetry{agg: &telemetry.SessionAggregates{PeakViewers: 420, AvgViewers: 180, ChatMessages: 3000, SampleCount: 120}},
		&fakeMoments{count: 4},
		store, nil, nil)

	rep, err := gen.Generate(context.Background(), accountID, session.ID)

	require.NoError(t, err)
	assert.Equal(t, 420, rep.PeakViewers)
	assert.Equal(t, 180, rep.AvgViewers)
	assert.Equal(t, 3000, rep.ChatMessages)
	assert.Equal(t, 4, rep.MomentCount)
	assert.Empty(t, rep.ArtifactURL, "no artifact without s3")
	assert.Same(t, rep, store.inserted)
}

func TestGenerateFailsForUnknownSession(t *testing.T) {
	gen := NewGenerator(&fakeSessions{}, &fakeTelemetry{}, &fakeMoments{}, &fakeReportStore{}, nil, nil)

	_, err := gen.Generate(context.Background(), uuid.New(), uuid.New())

	assert.Error(t, err)
}

func TestGeneratePropagatesAggregateFailure(t *testing.T) {
	session := &models.Session{ID: uuid.New()}
	gen := NewGenerator(
		&fakeSessions{session: session},
		&fakeTelemetry{err: errors.New("db down")},
		&fakeMoments{}, &fakeReportStore{}, nil, nil)

	_, err := gen.Generate(context.Background(), uuid.New(), session.ID)

	assert.Error(t, err)
}
