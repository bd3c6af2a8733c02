package poller

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
)

// Registry holds running pollers keyed by account id. Only the session
// lifecycle handler starts and stops entries.
type Registry struct {
	api      ViewerAPI
	store    SampleStore
	hub      Broadcaster
	detector Detector
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	pollers map[uuid.UUID]*Poller
}

// NewRegistry creates a poller registry with shared task dependencies.
func NewRegistry(api ViewerAPI, store SampleStore, hub Broadcaster, detector Detector, interval time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		api:      api,
		store:    store,
		hub:      hub,
		detector: detector,
		interval: interval,
		logger:   logger,
		pollers:  make(map[uuid.UUID]*Poller),
	}
}

// Start launches a poller for the account if none is running; starting
// twice for the same account is a no-op.
func (reg *Registry) Start(account *models.Account, session *models.Session) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.pollers[account.ID] != nil {
		return
	}
	p := NewPoller(account, session, reg.api, reg.store, reg.hub, reg.detector, reg.interval, reg.logger)
	reg.pollers[account.ID] = p
	p.Start()
}

// Stop cancels the account's poller and removes it from the registry.
// Stopping an absent entry is a no-op.
func (reg *Registry) Stop(accountID uuid.UUID) {
	reg.mu.Lock()
	p := reg.pollers[accountID]
	delete(reg.pollers, accountID)
	reg.mu.Unlock()
	if p != nil {
		p.Stop()
	}
}

// Running reports whether a poller exists for the account.
func (reg *Registry) Running(accountID uuid.UUID) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.pollers[accountID] != nil
}
