package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
)

// UserTokens resolves per-account IRC credentials.
type UserTokens interface {
	UserToken(ctx context.Context, account *models.Account) (string, error)
}

// Registry holds running chat listeners keyed by account id. Only the
// session lifecycle handler starts and stops entries.
type Registry struct {
	gatewayURL string
	tokens     UserTokens
	buckets    BucketStore
	samples    SampleStore
	hub        Broadcaster
	sampleRate int
	logger     *zap.Logger

	mu        sync.RWMutex
	listeners map[uuid.UUID]*Listener
}

// NewRegistry creates a chat listener registry with shared dependencies.
func NewRegistry(gatewayURL string, tokens UserTokens, buckets BucketStore, samples SampleStore, hub Broadcaster, sampleRate int, logger *zap.Logger) *Registry {
	return &Registry{
		gatewayURL: gatewayURL,
		tokens:     tokens,
		buckets:    buckets,
		samples:    samples,
		hub:        hub,
		sampleRate: sampleRate,
		logger:     logger,
		listeners:  make(map[uuid.UUID]*Listener),
	}
}

// Start launches a listener for the account if none is running; starting
// twice for the same account is a no-op.
func (reg *Registry) Start(account *models.Account, session *models.Session) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.listeners[account.ID] != nil {
		return
	}
	source := func(ctx context.Context) (string, error) {
		return reg.tokens.UserToken(ctx, account)
	}
	l := NewListener(account, session, reg.gatewayURL, source, reg.buckets, reg.samples, reg.hub, reg.sampleRate, reg.logger)
	reg.listeners[account.ID] = l
	l.Start()
}

// Stop disconnects the account's listener and removes it from the registry.
// Stopping an absent entry is a no-op.
func (reg *Registry) Stop(accountID uuid.UUID) {
	reg.mu.Lock()
	l := reg.listeners[accountID]
	delete(reg.listeners, accountID)
	reg.mu.Unlock()
	if l != nil {
		l.Stop()
	}
}

// Running reports whether a listener exists for the account.
func (reg *Registry) Running(accountID uuid.UUID) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.listeners[accountID] != nil
}
