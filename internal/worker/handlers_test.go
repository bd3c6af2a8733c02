package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/pkg/queue"
)

type fakeGenerator struct {
	accountID uuid.UUID
	sessionID uuid.UUID
}

func (f *fakeGenerator) Generate(ctx context.Context, accountID, sessionID uuid.UUID) (*models.SessionReport, error) {
	f.accountID, f.sessionID = accountID, sessionID
	return &models.SessionReport{ID: uuid.New(), SessionID: sessionID, PeakViewers: 99, MomentCount: 2}, nil
}

type fakeRetention struct {
	sampleCutoff time.Time
	chatCutoff   time.Time
}

func (f *fakeRetention) DeleteAudienceSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.sampleCutoff = cutoff
	return 7, nil
}

func (f *fakeRetention) DeleteChatBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.chatCutoff = cutoff
	return 3, nil
}

func TestReportHandlerDecodesPayload(t *testing.T) {
	gen := &fakeGenerator{}
	accountID, sessionID := uuid.New(), uuid.New()
	job := &queue.Job{
		ID:      "j1",
		Type:    queue.JobTypeReportGenerate,
		Payload: []byte(`{"account_id":"` + accountID.String() + `","session_id":"` + sessionID.String() + `"}`),
	}

	result, err := ReportHandler(gen)(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, accountID, gen.accountID)
	assert.Equal(t, sessionID, gen.sessionID)
	assert.Contains(t, result, "peak 99")
}

func TestReportHandlerRejectsBadPayload(t *testing.T) {
	job := &queue.Job{ID: "j1", Type: queue.JobTypeReportGenerate, Payload: []byte(`{"account_id":42}`)}

	_, err := ReportHandler(&fakeGenerator{})(context.Background(), job)

	assert.Error(t, err)
}

func TestCleanupHandlersUseDefaultRetention(t *testing.T) {
	store := &fakeRetention{}
	job := &queue.Job{ID: "j1", Type: queue.JobTypeCleanupSamples, Payload: []byte(`{}`)}

	result, err := CleanupSamplesHandler(store)(context.Background(), job)

	require.NoError(t, err)
	assert.Contains(t, result, "90 days")
	wantCutoff := time.Now().AddDate(0, 0, -defaultSampleRetentionDays)
	assert.WithinDuration(t, wantCutoff, store.sampleCutoff, time.Minute)
}

func TestCleanupHandlersHonorPayloadOverride(t *testing.T) {
	store := &fakeRetention{}
	job := &queue.Job{ID: "j1", Type: queue.JobTypeCleanupChat, Payload: []byte(`{"max_age_days":10}`)}

	result, err := CleanupChatHandler(store)(context.Background(), job)

	require.NoError(t, err)
	assert.Contains(t, result, "10 days")
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -10), store.chatCutoff, time.Minute)
}
