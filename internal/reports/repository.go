package reports

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streampulse/backend/internal/models"
)

// Repository handles session report persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a generated report and returns it with db-assigned fields.
func (r *Repository) Insert(ctx context.Context, rep *models.SessionReport) (*models.SessionReport, error) {
	const q = `INSERT INTO session_reports (session_id, peak_viewers, avg_viewers, chat_messages, moment_count, artifact_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, generated_at`
	err := r.pool.QueryRow(ctx, q,
		rep.SessionID, rep.PeakViewers, rep.AvgViewers, rep.ChatMessages, rep.MomentCount, rep.ArtifactURL,
	).Scan(&rep.ID, &rep.GeneratedAt)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// GetBySession returns the report for a session, or nil if none exists yet.
func (r *Repository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*models.SessionReport, error) {
	const q = `SELECT id, session_id, peak_viewers, avg_viewers, chat_messages, moment_count, artifact_url, generated_at
		FROM session_reports WHERE session_id = $1 ORDER BY generated_at DESC LIMIT 1`
	var rep models.SessionReport
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(
		&rep.ID, &rep.SessionID, &rep.PeakViewers, &rep.AvgViewers,
		&rep.ChatMessages, &rep.MomentCount, &rep.ArtifactURL, &rep.GeneratedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}
