package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueReports is the Redis list key for derived-report jobs.
	QueueReports = "worker:reports"
	// QueueCleanup is the Redis list key for periodic retention jobs.
	QueueCleanup = "worker:cleanup"

	// statusPrefix is the key prefix for per-job status records.
	statusPrefix = "job:"
	// statusTTL bounds how long finished job records are queryable.
	statusTTL = 7 * 24 * time.Hour
)

// KnownQueues lists every queue the worker drains each cycle.
var KnownQueues = []string{QueueReports, QueueCleanup}

// JobType identifies the job kind.
type JobType string

const (
	JobTypeReportGenerate JobType = "report_generate"
	JobTypeCleanupSamples JobType = "cleanup_samples"
	JobTypeCleanupChat    JobType = "cleanup_chat"
	JobTypeMomentsExpire  JobType = "moments_expire"
)

// JobStatus is the lifecycle state of a job. Terminal on first completion or
// first failure; there is no automatic re-queue.
type JobStatus string

const (
	StatusQueued JobStatus = "queued"
	StatusDone   JobStatus = "done"
	StatusFailed JobStatus = "failed"
)

// ReportGeneratePayload is the payload for derived-report jobs.
type ReportGeneratePayload struct {
	AccountID uuid.UUID `json:"account_id"`
	SessionID uuid.UUID `json:"session_id"`
	DeliverTo string    `json:"deliver_to,omitempty"`
}

// CleanupPayload is the payload for retention jobs. Zero MaxAgeDays means
// the handler's default.
type CleanupPayload struct {
	MaxAgeDays int `json:"max_age_days,omitempty"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// StatusRecord is the queryable state of a submitted job.
type StatusRecord struct {
	ID         string    `json:"id"`
	Type       JobType   `json:"type"`
	Status     JobStatus `json:"status"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Queue enqueues and drains jobs via Redis lists, one list per queue name.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a Redis-backed job queue.
func New(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// Enqueue pushes a job onto the named queue and records its queued status.
// Returns the job id for later status polling.
func (q *Queue) Enqueue(ctx context.Context, queueName string, jobType JobType, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queueName, raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	if err := q.writeStatus(ctx, StatusRecord{ID: job.ID, Type: jobType, Status: StatusQueued}); err != nil {
		q.logger.Warn("write job status failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(jobType)), zap.String("queue", queueName))
	return job.ID, nil
}

// DequeueBatch pops up to max jobs from the named queue without blocking.
// Invalid envelopes are skipped and logged.
func (q *Queue) DequeueBatch(ctx context.Context, queueName string, max int) ([]*Job, error) {
	jobs := make([]*Job, 0, max)
	for len(jobs) < max {
		raw, err := q.client.LPop(ctx, queueName).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return jobs, err
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Warn("invalid job payload", zap.String("queue", queueName), zap.Error(err))
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// MarkDone records a terminal success with the handler's result attached.
func (q *Queue) MarkDone(ctx context.Context, job *Job, result string) error {
	return q.writeStatus(ctx, StatusRecord{
		ID: job.ID, Type: job.Type, Status: StatusDone, Result: result, FinishedAt: time.Now(),
	})
}

// MarkFailed records a terminal failure with the error message attached.
// The job is not re-queued.
func (q *Queue) MarkFailed(ctx context.Context, job *Job, jobErr error) error {
	return q.writeStatus(ctx, StatusRecord{
		ID: job.ID, Type: job.Type, Status: StatusFailed, Error: jobErr.Error(), FinishedAt: time.Now(),
	})
}

// Status returns the status record for a job id, or nil if unknown/expired.
func (q *Queue) Status(ctx context.Context, jobID string) (*StatusRecord, error) {
	raw, err := q.client.Get(ctx, statusPrefix+jobID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec StatusRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	return &rec, nil
}

func (q *Queue) writeStatus(ctx context.Context, rec StatusRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, statusPrefix+rec.ID, raw, statusTTL).Err()
}
