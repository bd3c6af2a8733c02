// Package main runs the background job worker: report generation, telemetry
// retention and moment expiry.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streampulse/backend/config"
	"github.com/streampulse/backend/internal/moments"
	"github.com/streampulse/backend/internal/reports"
	"github.com/streampulse/backend/internal/sessions"
	"github.com/streampulse/backend/internal/telemetry"
	"github.com/streampulse/backend/internal/worker"
	"github.com/streampulse/backend/pkg/database"
	"github.com/streampulse/backend/pkg/queue"
	"github.com/streampulse/backend/pkg/redis"
	"github.com/streampulse/backend/pkg/storage"
)

// cleanupEvery is how often the worker schedules its own retention jobs.
const cleanupEvery = 24 * time.Hour

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			ReportsBucket:   cfg.AWS.ReportsBucket,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled; reports will have no artifact", zap.Error(err))
		}
	}

	sessionRepo := sessions.NewRepository(pool)
	telemetryRepo := telemetry.NewRepository(pool)
	momentRepo := moments.NewRepository(pool)
	reportRepo := reports.NewRepository(pool)
	generator := reports.NewGenerator(sessionRepo, telemetryRepo, momentRepo, reportRepo, s3Client, logger)

	jobQueue := queue.New(rdb.Client, logger)
	w := worker.New(jobQueue,
		time.Duration(cfg.Worker.PollIntervalSec)*time.Second,
		cfg.Worker.BatchSize, logger)
	w.Register(queue.JobTypeReportGenerate, worker.ReportHandler(generator))
	w.Register(queue.JobTypeCleanupSamples, worker.CleanupSamplesHandler(telemetryRepo))
	w.Register(queue.JobTypeCleanupChat, worker.CleanupChatHandler(telemetryRepo))
	w.Register(queue.JobTypeMomentsExpire, worker.MomentsExpireHandler(momentRepo))

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(workerCtx)
	go scheduleCleanup(workerCtx, jobQueue, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

// scheduleCleanup enqueues the periodic retention jobs. Enqueue failures are
// logged and retried on the next tick.
func scheduleCleanup(ctx context.Context, q *queue.Queue, logger *zap.Logger) {
	enqueue := func() {
		jobs := []queue.JobType{queue.JobTypeCleanupSamples, queue.JobTypeCleanupChat, queue.JobTypeMomentsExpire}
		for _, jobType := range jobs {
			if _, err := q.Enqueue(ctx, queue.QueueCleanup, jobType, queue.CleanupPayload{}); err != nil {
				logger.Warn("enqueue cleanup failed", zap.String("type", string(jobType)), zap.Error(err))
			}
		}
	}
	enqueue()
	ticker := time.NewTicker(cleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
