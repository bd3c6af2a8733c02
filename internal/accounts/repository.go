package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streampulse/backend/internal/models"
)

const accountColumns = `id, twitch_user_id, login, display_name, access_token, refresh_token, token_expires_at,
	tracking_enabled, auto_clip_enabled, auto_clip_threshold, max_auto_clips, moment_ttl_days, created_at, updated_at`

// Repository handles accounts persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an accounts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.TwitchUserID, &a.Login, &a.DisplayName, &a.AccessToken, &a.RefreshToken,
		&a.TokenExpiresAt, &a.TrackingEnabled, &a.AutoClipEnabled, &a.AutoClipThreshold,
		&a.MaxAutoClips, &a.MomentTTLDays, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetByID returns the account with the given id, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, q, id))
}

// GetByTwitchUserID resolves an account by its external platform id, or nil if absent.
func (r *Repository) GetByTwitchUserID(ctx context.Context, twitchUserID string) (*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE twitch_user_id = $1`
	return scanAccount(r.pool.QueryRow(ctx, q, twitchUserID))
}

// ListTracked returns all accounts with tracking enabled.
func (r *Repository) ListTracked(ctx context.Context) ([]*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE tracking_enabled ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateTokens persists a refreshed access/refresh token pair.
func (r *Repository) UpdateTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiresAt time.Time) error {
	const q = `UPDATE accounts SET access_token = $1, refresh_token = $2, token_expires_at = $3, updated_at = NOW() WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, access, refresh, expiresAt, id)
	return err
}
