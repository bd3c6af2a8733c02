package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
	"github.com/streampulse/backend/internal/telemetry"
	"github.com/streampulse/backend/pkg/storage"
)

// SessionStore resolves the session being reported on.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// TelemetryStore serves aggregates and raw samples for the report.
type TelemetryStore interface {
	AggregateSession(ctx context.Context, sessionID uuid.UUID) (*telemetry.SessionAggregates, error)
	AudienceSamples(ctx context.Context, sessionID uuid.UUID) ([]*models.AudienceSample, error)
}

// MomentCounter counts moments detected during the session.
type MomentCounter interface {
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// ReportStore persists generated reports.
type ReportStore interface {
	Insert(ctx context.Context, rep *models.SessionReport) (*models.SessionReport, error)
}

// Generator builds the derived summary for a closed session and optionally
// uploads a CSV of its raw audience curve. Artifact upload failures degrade
// to a report without an artifact URL.
type Generator struct {
	sessions  SessionStore
	telemetry TelemetryStore
	moments   MomentCounter
	store     ReportStore
	s3        *storage.S3 // nil disables artifact upload
	logger    *zap.Logger
}

// NewGenerator creates a report generator. s3 may be nil.
func NewGenerator(sessions SessionStore, tel TelemetryStore, moments MomentCounter, store ReportStore, s3 *storage.S3, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		sessions:  sessions,
		telemetry: tel,
		moments:   moments,
		store:     store,
		s3:        s3,
		logger:    logger,
	}
}

// Generate builds and persists the report for one session.
func (g *Generator) Generate(ctx context.Context, accountID, sessionID uuid.UUID) (*models.SessionReport, error) {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	agg, err := g.telemetry.AggregateSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("aggregate session: %w", err)
	}
	momentCount, err := g.moments.CountBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count moments: %w", err)
	}

	rep := &models.SessionReport{
		SessionID:    sessionID,
		PeakViewers:  agg.PeakViewers,
		AvgViewers:   agg.AvgViewers,
		ChatMessages: agg.ChatMessages,
		MomentCount:  momentCount,
	}
	if g.s3 != nil {
		url, err := g.uploadArtifact(ctx, accountID, sessionID)
		if err != nil {
			g.logger.Warn("report artifact upload failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		} else {
			rep.ArtifactURL = url
		}
	}
	rep, err = g.store.Insert(ctx, rep)
	if err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	g.logger.Info("report generated",
		zap.String("session_id", sessionID.String()),
		zap.Int("peak_viewers", rep.PeakViewers),
		zap.Int("moments", rep.MomentCount))
	return rep, nil
}

// uploadArtifact writes the session's audience curve as CSV to S3.
func (g *Generator) uploadArtifact(ctx context.Context, accountID, sessionID uuid.UUID) (string, error) {
	samples, err := g.telemetry.AudienceSamples(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load samples: %w", err)
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"sampled_at", "viewers"})
	for _, s := range samples {
		_ = w.Write([]string{s.SampledAt.UTC().Format(time.RFC3339), strconv.Itoa(s.Viewers)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("encode csv: %w", err)
	}
	key := storage.ReportKey(accountID.String(), sessionID.String())
	return g.s3.Upload(ctx, key, "text/csv", &buf)
}
