// Package main runs the telemetry HTTP server: webhook intake, realtime
// fan-out and per-account background tasks, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/streampulse/backend/config"
	"github.com/streampulse/backend/internal/accounts"
	"github.com/streampulse/backend/internal/auth"
	"github.com/streampulse/backend/internal/chat"
	"github.com/streampulse/backend/internal/eventsub"
	"github.com/streampulse/backend/internal/lifecycle"
	"github.com/streampulse/backend/internal/middleware"
	"github.com/streampulse/backend/internal/moments"
	"github.com/streampulse/backend/internal/poller"
	"github.com/streampulse/backend/internal/realtime"
	"github.com/streampulse/backend/internal/sessions"
	"github.com/streampulse/backend/internal/telemetry"
	"github.com/streampulse/backend/internal/twitch"
	"github.com/streampulse/backend/pkg/database"
	"github.com/streampulse/backend/pkg/queue"
	"github.com/streampulse/backend/pkg/redis"
	"github.com/streampulse/backend/pkg/response"
)

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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis carries the job queue and the cross-instance event bus. Both
	// degrade when it is down: jobs are skipped with a log line and events
	// stay local to this instance.
	var jobQueue *queue.Queue
	var hub *realtime.Hub
	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable; jobs and cross-instance events disabled", zap.Error(err))
		hub = realtime.NewHub(nil, nil, logger)
	} else {
		defer rdb.Close()
		jobQueue = queue.New(rdb.Client, logger)
		bus := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(bus, bus, logger)
	}

	accountRepo := accounts.NewRepository(pool)
	sessionRepo := sessions.NewRepository(pool)
	telemetryRepo := telemetry.NewRepository(pool)
	momentRepo := moments.NewRepository(pool)

	tokens := twitch.NewTokenProvider(cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, cfg.Twitch.AuthURL, accountRepo, logger)
	apiClient := twitch.NewClient(cfg.Twitch.ClientID, tokens, cfg.Twitch.HelixURL, logger)

	momentSvc := moments.NewService(momentRepo, hub, apiClient, cfg.Detector.MomentTTLDays, logger)

	pollInterval := time.Duration(cfg.Detector.PollIntervalSec) * time.Second
	pollers := poller.NewRegistry(apiClient, telemetryRepo, hub, momentSvc, pollInterval, logger)
	listeners := chat.NewRegistry(cfg.Twitch.ChatURL, tokens, telemetryRepo, telemetryRepo, hub, cfg.Detector.ChatSampleRate, logger)

	var enqueuer lifecycle.Enqueuer
	if jobQueue != nil {
		enqueuer = jobQueue
	}
	subManager := eventsub.NewManager(apiClient, accountRepo, cfg.Twitch.CallbackURL, cfg.Twitch.WebhookSecret, logger)
	lifecycleHandler := lifecycle.NewHandler(
		accountRepo, sessionRepo, telemetryRepo, apiClient,
		[]lifecycle.TaskRegistry{pollers, listeners},
		hub, enqueuer, subManager, logger,
	)
	webhook := eventsub.NewHandler(cfg.Twitch.WebhookSecret, lifecycleHandler, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	sseValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.AccountID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/healthz", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhooks (no JWT; HMAC signature verified in the handler)
	router.POST("/webhooks/twitch", webhook.Webhook)

	// SSE (token in query; no Authorization header on EventSource)
	router.GET("/realtime/subscribe", realtime.ServeSSE(hub, sseValidate, logger))

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/jobs/:id", func(c *gin.Context) {
			if jobQueue == nil {
				response.ServiceUnavailable(c, "job queue unavailable")
				return
			}
			rec, err := jobQueue.Status(c.Request.Context(), c.Param("id"))
			if err != nil {
				response.Internal(c, "lookup job status")
				return
			}
			if rec == nil {
				response.NotFound(c, "job not found")
				return
			}
			response.OK(c, rec)
		})
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background maintenance: subscription ensure/reconcile loops and
	// resuming sessions a previous instance left open.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go subManager.Run(bgCtx,
		time.Duration(cfg.Detector.EnsureIntervalMin)*time.Minute,
		time.Duration(cfg.Detector.ReconcileHours)*time.Hour)
	if err := lifecycleHandler.ResumeOpenSessions(ctx); err != nil {
		logger.Error("resume open sessions", zap.Error(err))
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	lifecycleHandler.StopAll(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
