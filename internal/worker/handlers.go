package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/pkg/queue"
)

const (
	defaultSampleRetentionDays = 90
	defaultChatRetentionDays   = 30
)

// ReportGenerator builds the derived summary for a closed session.
type ReportGenerator interface {
	Generate(ctx context.Context, accountID, sessionID uuid.UUID) (*models.SessionReport, error)
}

// RetentionStore deletes aged raw telemetry.
type RetentionStore interface {
	DeleteAudienceSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteChatBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MomentExpirer transitions aged pending moments to expired.
type MomentExpirer interface {
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// ReportHandler executes report_generate jobs.
func ReportHandler(gen ReportGenerator) Handler {
	return func(ctx context.Context, job *queue.Job) (string, error) {
		var payload queue.ReportGeneratePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return "", fmt.Errorf("unmarshal payload: %w", err)
		}
		rep, err := gen.Generate(ctx, payload.AccountID, payload.SessionID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("report %s: peak %d, %d moments", rep.ID, rep.PeakViewers, rep.MomentCount), nil
	}
}

// CleanupSamplesHandler executes cleanup_samples jobs.
func CleanupSamplesHandler(store RetentionStore) Handler {
	return func(ctx context.Context, job *queue.Job) (string, error) {
		days := retentionDays(job, defaultSampleRetentionDays)
		n, err := store.DeleteAudienceSamplesBefore(ctx, time.Now().AddDate(0, 0, -days))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted %d audience samples older than %d days", n, days), nil
	}
}

// CleanupChatHandler executes cleanup_chat jobs.
func CleanupChatHandler(store RetentionStore) Handler {
	return func(ctx context.Context, job *queue.Job) (string, error) {
		days := retentionDays(job, defaultChatRetentionDays)
		n, err := store.DeleteChatBefore(ctx, time.Now().AddDate(0, 0, -days))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted %d chat rows older than %d days", n, days), nil
	}
}

// MomentsExpireHandler executes moments_expire jobs.
func MomentsExpireHandler(store MomentExpirer) Handler {
	return func(ctx context.Context, job *queue.Job) (string, error) {
		n, err := store.ExpirePending(ctx, time.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("expired %d pending moments", n), nil
	}
}

func retentionDays(job *queue.Job, fallback int) int {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(job.Payload, &payload); err == nil && payload.MaxAgeDays > 0 {
		return payload.MaxAgeDays
	}
	return fallback
}
