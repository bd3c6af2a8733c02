package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/streampulse/backend/pkg/queue"
)

// Handler executes one job and returns a human-readable result string.
type Handler func(ctx context.Context, job *queue.Job) (string, error)

// JobStore drains queues and records terminal job outcomes. The Redis queue
// implements it.
type JobStore interface {
	DequeueBatch(ctx context.Context, queueName string, max int) ([]*queue.Job, error)
	MarkDone(ctx context.Context, job *queue.Job, result string) error
	MarkFailed(ctx context.Context, job *queue.Job, jobErr error) error
}

// Worker polls every known queue on a fixed cadence and dispatches jobs to
// registered handlers. A failed job is marked failed and never re-queued;
// an unregistered job type fails the same way.
type Worker struct {
	store     JobStore
	handlers  map[queue.JobType]Handler
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// New creates a worker with no handlers registered.
func New(store JobStore, interval time.Duration, batchSize int, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		store:     store,
		handlers:  make(map[queue.JobType]Handler),
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Register binds a handler to a job type, replacing any previous binding.
func (w *Worker) Register(jobType queue.JobType, h Handler) {
	w.handlers[jobType] = h
}

// Run polls until the context is cancelled. A job already being processed
// finishes before Run returns.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started",
		zap.Duration("poll_interval", w.interval),
		zap.Int("batch_size", w.batchSize))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			w.runCycle(ctx)
		}
	}
}

// runCycle drains up to batchSize jobs from each known queue.
func (w *Worker) runCycle(ctx context.Context) {
	for _, queueName := range queue.KnownQueues {
		jobs, err := w.store.DequeueBatch(ctx, queueName, w.batchSize)
		if err != nil {
			w.logger.Warn("dequeue failed", zap.String("queue", queueName), zap.Error(err))
			continue
		}
		for _, job := range jobs {
			w.process(ctx, job)
		}
	}
}

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	start := time.Now()
	handler, ok := w.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %q", job.Type)
		w.logger.Error("job rejected", zap.String("job_id", job.ID), zap.Error(err))
		w.markFailed(ctx, job, err)
		return
	}
	result, err := handler(ctx, job)
	if err != nil {
		w.logger.Error("job failed",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		w.markFailed(ctx, job, err)
		return
	}
	if err := w.store.MarkDone(ctx, job, result); err != nil {
		w.logger.Warn("mark done failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	w.logger.Info("job done",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Duration("took", time.Since(start)))
}

func (w *Worker) markFailed(ctx context.Context, job *queue.Job, jobErr error) {
	if err := w.store.MarkFailed(ctx, job, jobErr); err != nil {
		w.logger.Warn("mark failed failed", zap.Error(err), zap.String("job_id", job.ID))
	}
}
