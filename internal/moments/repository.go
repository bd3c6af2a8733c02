package moments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streampulse/backend/internal/models"
)

const momentColumns = `id, account_id, session_id, label, score, status, auto_clipped, clip_id, detected_at, expires_at, created_at, updated_at`

// Repository handles moments persistence. Status transitions are guarded in
// SQL so a terminal moment is never re-opened.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a moments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanMoment(row pgx.Row) (*models.Moment, error) {
	var m models.Moment
	err := row.Scan(&m.ID, &m.AccountID, &m.SessionID, &m.Label, &m.Score, &m.Status, &m.AutoClipped,
		&m.ClipID, &m.DetectedAt, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts a new pending moment.
func (r *Repository) Create(ctx context.Context, accountID, sessionID uuid.UUID, label string, score int, detectedAt, expiresAt time.Time) (*models.Moment, error) {
	const q = `INSERT INTO moments (account_id, session_id, label, score, status, detected_at, expires_at)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING ` + momentColumns
	return scanMoment(r.pool.QueryRow(ctx, q, accountID, sessionID, label, score, detectedAt, expiresAt))
}

// GetByID returns a moment by id, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Moment, error) {
	const q = `SELECT ` + momentColumns + ` FROM moments WHERE id = $1`
	return scanMoment(r.pool.QueryRow(ctx, q, id))
}

// MarkClipped transitions a pending moment to clipped. Returns false when the
// moment was already terminal (the guard rejects the update).
func (r *Repository) MarkClipped(ctx context.Context, id uuid.UUID, clipID string, auto bool) (bool, error) {
	const q = `UPDATE moments SET status = 'clipped', clip_id = $1, auto_clipped = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, clipID, auto, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRejected transitions a pending moment to rejected. Returns false when
// the moment was already terminal.
func (r *Repository) MarkRejected(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE moments SET status = 'rejected', updated_at = NOW() WHERE id = $1 AND status = 'pending'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountAutoClippedBySession returns how many moments in a session were
// clipped automatically, for the per-session auto-action cap.
func (r *Repository) CountAutoClippedBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM moments WHERE session_id = $1 AND status = 'clipped' AND auto_clipped`
	var n int
	if err := r.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountBySession returns the total moments detected in a session.
func (r *Repository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM moments WHERE session_id = $1`
	var n int
	if err := r.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ExpirePending transitions every pending moment whose expiry has passed to
// expired. Returns the number of rows transitioned.
func (r *Repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE moments SET status = 'expired', updated_at = NOW() WHERE status = 'pending' AND expires_at < $1`
	tag, err := r.pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
