package poller

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streampulse/backend/internal/models"
)

// ViewerAPI fetches the current audience size for a channel.
type ViewerAPI interface {
	ViewerCount(ctx context.Context, twitchUserID string) (int, error)
}

// SampleStore persists audience samples and serves recent chat activity to
// the detector.
type SampleStore interface {
	AppendAudienceSample(ctx context.Context, sessionID uuid.UUID, viewers int, sampledAt time.Time) error
	RecentChatBuckets(ctx context.Context, sessionID uuid.UUID, n int) ([]*models.ChatActivityBucket, error)
}

// Broadcaster pushes events to connected dashboards.
type Broadcaster interface {
	Broadcast(accountID uuid.UUID, event string, payload interface{})
}

// Detector consumes consecutive sample pairs.
type Detector interface {
	OnSample(ctx context.Context, account *models.Account, session *models.Session, previous, current int, buckets []int)
}

// Poller samples one account's audience size on a fixed cadence while its
// session is live. A failed tick is logged and the next tick proceeds
// normally; the task never terminates itself.
type Poller struct {
	account  *models.Account
	session  *models.Session
	api      ViewerAPI
	store    SampleStore
	hub      Broadcaster
	detector Detector
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	previous *int // last successful sample, nil before the first
}

// NewPoller creates a viewer poller for one account's live session.
func NewPoller(account *models.Account, session *models.Session, api ViewerAPI, store SampleStore, hub Broadcaster, detector Detector, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		account:  account,
		session:  session,
		api:      api,
		store:    store,
		hub:      hub,
		detector: detector,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the polling loop. Call Stop to release resources.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx)
	p.logger.Info("viewer poller started",
		zap.String("account_id", p.account.ID.String()),
		zap.String("session_id", p.session.ID.String()),
		zap.Duration("interval", p.interval))
}

// Stop cancels the scheduled task and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	cancel()
	<-p.done
	p.logger.Info("viewer poller stopped", zap.String("account_id", p.account.ID.String()))
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

// runTick performs one sample: fetch, persist, broadcast, detect. Each step
// failure is non-fatal for the loop; a fetch failure skips the whole tick so
// detection never runs on stale data.
func (p *Poller) runTick(ctx context.Context) {
	viewers, err := p.api.ViewerCount(ctx, p.account.TwitchUserID)
	if err != nil {
		p.logger.Warn("viewer poll failed", zap.Error(err), zap.String("account_id", p.account.ID.String()))
		return
	}
	now := time.Now()
	if err := p.store.AppendAudienceSample(ctx, p.session.ID, viewers, now); err != nil {
		p.logger.Warn("persist audience sample failed", zap.Error(err), zap.String("session_id", p.session.ID.String()))
	}
	if p.hub != nil {
		p.hub.Broadcast(p.account.ID, "viewers", map[string]interface{}{
			"session_id": p.session.ID,
			"viewers":    viewers,
			"at":         now.Unix(),
		})
	}
	if p.previous != nil && p.detector != nil {
		var counts []int
		buckets, err := p.store.RecentChatBuckets(ctx, p.session.ID, 2)
		if err != nil {
			p.logger.Warn("load chat buckets failed", zap.Error(err), zap.String("session_id", p.session.ID.String()))
		} else {
			for _, b := range buckets {
				counts = append(counts, b.Messages)
			}
		}
		p.detector.OnSample(ctx, p.account, p.session, *p.previous, viewers, counts)
	}
	v := viewers
	p.previous = &v
}
