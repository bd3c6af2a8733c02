package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streampulse/backend/internal/models"
)

const sessionColumns = `id, account_id, twitch_stream_id, title, category, started_at, ended_at, created_at`

// Repository handles sessions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.AccountID, &s.TwitchStreamID, &s.Title, &s.Category, &s.StartedAt, &s.EndedAt, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session. Title and category may be empty when
// enrichment failed; the session record is still created.
func (r *Repository) Create(ctx context.Context, accountID uuid.UUID, streamID, title, category string) (*models.Session, error) {
	const q = `INSERT INTO sessions (account_id, twitch_stream_id, title, category)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, accountID, streamID, title, category))
}

// GetByID returns the session with the given id, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, q, id))
}

// GetOpenByAccount returns the account's currently-open session (no end
// timestamp), or nil if the account is not live.
func (r *Repository) GetOpenByAccount(ctx context.Context, accountID uuid.UUID) (*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions
		WHERE account_id = $1 AND ended_at IS NULL ORDER BY started_at DESC LIMIT 1`
	return scanSession(r.pool.QueryRow(ctx, q, accountID))
}

// ListOpen returns every session with no end timestamp, for restart
// reconciliation.
func (r *Repository) ListOpen(ctx context.Context) ([]*models.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE ended_at IS NULL ORDER BY started_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close sets ended_at for a session. Already-closed sessions are untouched.
func (r *Repository) Close(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	const q = `UPDATE sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id, endedAt)
	return err
}
