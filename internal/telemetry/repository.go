package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streampulse/backend/internal/models"
)

// Repository handles audience samples, chat activity and follow persistence.
// All writes are append-only; retention deletes run from cleanup jobs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a telemetry repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendAudienceSample records one viewer-count reading.
func (r *Repository) AppendAudienceSample(ctx context.Context, sessionID uuid.UUID, viewers int, sampledAt time.Time) error {
	const q = `INSERT INTO audience_samples (session_id, viewers, sampled_at) VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, q, sessionID, viewers, sampledAt)
	return err
}

// LatestAudienceSample returns the most recent sample for a session, or nil
// if none exists yet.
func (r *Repository) LatestAudienceSample(ctx context.Context, sessionID uuid.UUID) (*models.AudienceSample, error) {
	const q = `SELECT id, session_id, viewers, sampled_at FROM audience_samples
		WHERE session_id = $1 ORDER BY sampled_at DESC LIMIT 1`
	var s models.AudienceSample
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&s.ID, &s.SessionID, &s.Viewers, &s.SampledAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// AppendChatBucket records one closed 60-second chat activity window.
func (r *Repository) AppendChatBucket(ctx context.Context, sessionID uuid.UUID, bucketStart time.Time, messages int) error {
	const q = `INSERT INTO chat_activity_buckets (session_id, bucket_start, messages) VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, q, sessionID, bucketStart, messages)
	return err
}

// RecentChatBuckets returns up to n most recent buckets for a session,
// newest first.
func (r *Repository) RecentChatBuckets(ctx context.Context, sessionID uuid.UUID, n int) ([]*models.ChatActivityBucket, error) {
	const q = `SELECT id, session_id, bucket_start, messages FROM chat_activity_buckets
		WHERE session_id = $1 ORDER BY bucket_start DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ChatActivityBucket
	for rows.Next() {
		var b models.ChatActivityBucket
		if err := rows.Scan(&b.ID, &b.SessionID, &b.BucketStart, &b.Messages); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// AppendChatMessageSample records one sampled chat message.
func (r *Repository) AppendChatMessageSample(ctx context.Context, s *models.ChatMessageSample) error {
	const q = `INSERT INTO chat_message_samples (session_id, username, content, emote_only, sentiment, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, s.SessionID, s.Username, s.Content, s.EmoteOnly, s.Sentiment, s.SentAt)
	return err
}

// AppendFollow records an audience-growth event.
func (r *Repository) AppendFollow(ctx context.Context, f *models.Follow) error {
	const q = `INSERT INTO follows (account_id, session_id, follower_id, follower, followed_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, q, f.AccountID, f.SessionID, f.FollowerID, f.Follower, f.FollowedAt)
	return err
}

// SessionAggregates holds derived totals for one session's report.
type SessionAggregates struct {
	PeakViewers  int
	AvgViewers   int
	ChatMessages int
	SampleCount  int
}

// AggregateSession computes report totals over a session's raw telemetry.
func (r *Repository) AggregateSession(ctx context.Context, sessionID uuid.UUID) (*SessionAggregates, error) {
	const q = `SELECT
		COALESCE((SELECT MAX(viewers) FROM audience_samples WHERE session_id = $1), 0),
		COALESCE((SELECT ROUND(AVG(viewers)) FROM audience_samples WHERE session_id = $1), 0),
		COALESCE((SELECT SUM(messages) FROM chat_activity_buckets WHERE session_id = $1), 0),
		COALESCE((SELECT COUNT(*) FROM audience_samples WHERE session_id = $1), 0)`
	var a SessionAggregates
	err := r.pool.QueryRow(ctx, q, sessionID).Scan(&a.PeakViewers, &a.AvgViewers, &a.ChatMessages, &a.SampleCount)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AudienceSamples returns all samples for a session in timestamp order,
// for report artifact generation.
func (r *Repository) AudienceSamples(ctx context.Context, sessionID uuid.UUID) ([]*models.AudienceSample, error) {
	const q = `SELECT id, session_id, viewers, sampled_at FROM audience_samples
		WHERE session_id = $1 ORDER BY sampled_at`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.AudienceSample
	for rows.Next() {
		var s models.AudienceSample
		if err := rows.Scan(&s.ID, &s.SessionID, &s.Viewers, &s.SampledAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// DeleteAudienceSamplesBefore removes raw samples older than the cutoff.
// Returns the number of rows removed.
func (r *Repository) DeleteAudienceSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM audience_samples WHERE sampled_at < $1`
	tag, err := r.pool.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteChatBefore removes raw chat samples and closed buckets older than
// the cutoff. Returns the number of rows removed.
func (r *Repository) DeleteChatBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_message_samples WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n := tag.RowsAffected()
	tag, err = r.pool.Exec(ctx, `DELETE FROM chat_activity_buckets WHERE bucket_start < $1`, cutoff)
	if err != nil {
		return n, err
	}
	return n + tag.RowsAffected(), nil
}
