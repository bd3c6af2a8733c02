package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer is the per-subscriber send queue; slow consumers drop
// events rather than block the broadcast.
const subscriberBuffer = 64

// Event is one message delivered to dashboard subscribers.
type Event struct {
	Name string
	Data json.RawMessage
}

// Subscriber is one connected dashboard stream for an account.
type Subscriber struct {
	ID        string
	AccountID uuid.UUID
	ch        chan Event
}

// Events returns the subscriber's delivery channel.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// BusPublisher publishes an event to the cross-instance bus.
type BusPublisher interface {
	PublishAccountEvent(accountID uuid.UUID, event string, payload []byte) error
}

// BusSubscriber subscribes to an account's bus channel and invokes handler
// for events published by other instances.
type BusSubscriber interface {
	SubscribeAccount(accountID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains account id -> set of subscribers and fans events out to all
// of them, bridging through the shared bus so instances behind a load
// balancer deliver to their own subscribers. A nil bus degrades to
// local-only delivery; Broadcast never blocks or errors the caller.
type Hub struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]map[string]*Subscriber
	subs     map[uuid.UUID]func() // cancel bus subscription per account
	pub      BusPublisher
	sub      BusSubscriber
	logger   *zap.Logger
}

// NewHub creates a fan-out hub. pub and sub may be nil when no bus is
// configured.
func NewHub(pub BusPublisher, sub BusSubscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		accounts: make(map[uuid.UUID]map[string]*Subscriber),
		subs:     make(map[uuid.UUID]func()),
		pub:      pub,
		sub:      sub,
		logger:   logger,
	}
}

// Register adds a subscriber for an account. The first subscriber for an
// account opens the bus subscription for its channel.
func (h *Hub) Register(accountID uuid.UUID) *Subscriber {
	s := &Subscriber{
		ID:        uuid.New().String(),
		AccountID: accountID,
		ch:        make(chan Event, subscriberBuffer),
	}
	h.mu.Lock()
	if h.accounts[accountID] == nil {
		h.accounts[accountID] = make(map[string]*Subscriber)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeAccount(accountID, func(event string, payload []byte) {
				h.deliverLocal(accountID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("bus subscribe failed; cross-instance events disabled for account",
					zap.Error(err), zap.String("account_id", accountID.String()))
			} else {
				h.subs[accountID] = cancel
			}
		}
	}
	h.accounts[accountID][s.ID] = s
	h.mu.Unlock()
	subscribersGauge.Inc()
	h.logger.Debug("subscriber joined", zap.String("subscriber_id", s.ID), zap.String("account_id", accountID.String()))
	return s
}

// Unregister removes a subscriber. The last subscriber for an account
// closes the bus subscription.
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	if m, ok := h.accounts[s.AccountID]; ok {
		if _, ok := m[s.ID]; ok {
			delete(m, s.ID)
			subscribersGauge.Dec()
		}
		if len(m) == 0 {
			delete(h.accounts, s.AccountID)
			if cancel, ok := h.subs[s.AccountID]; ok {
				cancel()
				delete(h.subs, s.AccountID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("subscriber left", zap.String("subscriber_id", s.ID), zap.String("account_id", s.AccountID.String()))
}

// SubscriberCount returns the number of local subscribers for an account.
func (h *Hub) SubscriberCount(accountID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.accounts[accountID])
}

// Broadcast delivers an event to every local subscriber for the account and
// publishes it to the bus for other instances. Individual subscriber
// failures and bus failures are swallowed.
func (h *Hub) Broadcast(accountID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("broadcast marshal failed", zap.Error(err), zap.String("event", event))
		return
	}
	h.deliverLocal(accountID, event, data)
	if h.pub != nil {
		if err := h.pub.PublishAccountEvent(accountID, event, data); err != nil {
			h.logger.Debug("bus publish failed; delivered locally only", zap.Error(err), zap.String("event", event))
		}
	}
}

func (h *Hub) deliverLocal(accountID uuid.UUID, event string, data json.RawMessage) {
	// Snapshot the subscriber set so Register/Unregister can mutate the map
	// while sends are in flight.
	h.mu.RLock()
	subscribers := make([]*Subscriber, 0, len(h.accounts[accountID]))
	for _, s := range h.accounts[accountID] {
		subscribers = append(subscribers, s)
	}
	h.mu.RUnlock()
	if len(subscribers) == 0 {
		return
	}
	msg := Event{Name: event, Data: data}
	for _, s := range subscribers {
		select {
		case s.ch <- msg:
			eventsDelivered.Inc()
		default:
			// buffer full, drop for this subscriber
			eventsDropped.Inc()
		}
	}
}
