package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// bucketWidth is the chat activity window size.
const bucketWidth = time.Minute

// BucketStore persists closed chat activity windows.
type BucketStore interface {
	AppendChatBucket(ctx context.Context, sessionID uuid.UUID, bucketStart time.Time, messages int) error
}

// bucketizer accumulates message counts into aligned one-minute windows and
// flushes a window when the first message of the next window arrives, or when
// the owning listener shuts down. All time flows in through Observe and
// FlushBefore so tests can drive it directly.
type bucketizer struct {
	sessionID uuid.UUID
	accountID uuid.UUID
	store     BucketStore
	hub       Broadcaster
	logger    *zap.Logger

	mu    sync.Mutex
	start time.Time // zero when no window is open
	count int
}

func newBucketizer(accountID, sessionID uuid.UUID, store BucketStore, hub Broadcaster, logger *zap.Logger) *bucketizer {
	return &bucketizer{
		sessionID: sessionID,
		accountID: accountID,
		store:     store,
		hub:       hub,
		logger:    logger,
	}
}

// Observe counts one message at the given time, closing the previous window
// first if the message falls past it.
func (b *bucketizer) Observe(ctx context.Context, at time.Time) {
	aligned := at.Truncate(bucketWidth)
	b.mu.Lock()
	if !b.start.IsZero() && aligned.After(b.start) {
		// Attribute the message to the new window before releasing the
		// lock so a concurrent FlushBefore cannot land it elsewhere.
		start, count := b.start, b.count
		b.start, b.count = aligned, 1
		b.mu.Unlock()
		b.flush(ctx, start, count)
		return
	}
	if b.start.IsZero() {
		b.start = aligned
	}
	b.count++
	b.mu.Unlock()
}

// FlushBefore closes the open window if the given time has moved past it.
// The listener calls it from a ticker so quiet minutes still close promptly.
func (b *bucketizer) FlushBefore(ctx context.Context, at time.Time) {
	aligned := at.Truncate(bucketWidth)
	b.mu.Lock()
	if b.start.IsZero() || !aligned.After(b.start) {
		b.mu.Unlock()
		return
	}
	start, count := b.start, b.count
	b.start, b.count = time.Time{}, 0
	b.mu.Unlock()
	b.flush(ctx, start, count)
}

// Close flushes any open window regardless of age. Called on listener stop
// with a short background context so a session's final partial window is not
// lost to request cancellation.
func (b *bucketizer) Close(ctx context.Context) {
	b.mu.Lock()
	if b.start.IsZero() {
		b.mu.Unlock()
		return
	}
	start, count := b.start, b.count
	b.start, b.count = time.Time{}, 0
	b.mu.Unlock()
	b.flush(ctx, start, count)
}

func (b *bucketizer) flush(ctx context.Context, start time.Time, count int) {
	if err := b.store.AppendChatBucket(ctx, b.sessionID, start, count); err != nil {
		b.logger.Warn("persist chat bucket failed",
			zap.Error(err),
			zap.String("session_id", b.sessionID.String()),
			zap.Time("bucket_start", start))
	}
	if b.hub != nil {
		b.hub.Broadcast(b.accountID, "chat_activity", map[string]interface{}{
			"session_id":   b.sessionID,
			"bucket_start": start.Unix(),
			"messages":     count,
		})
	}
}
