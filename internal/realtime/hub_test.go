package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	published []string
	handlers  map[uuid.UUID]func(event string, payload []byte)
	cancelled int
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[uuid.UUID]func(string, []byte))}
}

func (f *fakeBus) PublishAccountEvent(accountID uuid.UUID, event string, payload []byte) error {
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) SubscribeAccount(accountID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	f.handlers[accountID] = handler
	return func() {
		f.cancelled++
		delete(f.handlers, accountID)
	}, nil
}

func TestHubDeliversToAccountSubscribers(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	accountA, accountB := uuid.New(), uuid.New()
	subA := hub.Register(accountA)
	subB := hub.Register(accountB)
	defer hub.Unregister(subA)
	defer hub.Unregister(subB)

	hub.Broadcast(accountA, "viewers", map[string]int{"viewers": 42})

	select {
	case ev := <-subA.Events():
		assert.Equal(t, "viewers", ev.Name)
		var payload map[string]int
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, 42, payload["viewers"])
	default:
		t.Fatal("subscriber A received nothing")
	}
	select {
	case ev := <-subB.Events():
		t.Fatalf("subscriber B received %q for another account", ev.Name)
	default:
	}
}

func TestHubFansOutToAllSubscribersOfAccount(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	account := uuid.New()
	s1 := hub.Register(account)
	s2 := hub.Register(account)
	defer hub.Unregister(s1)
	defer hub.Unregister(s2)

	assert.Equal(t, 2, hub.SubscriberCount(account))
	hub.Broadcast(account, "moment", map[string]int{"score": 60})

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case ev := <-s.Events():
			assert.Equal(t, "moment", ev.Name)
		default:
			t.Fatal("subscriber received nothing")
		}
	}
}

func TestHubDropsWhenSubscriberBufferFull(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	account := uuid.New()
	sub := hub.Register(account)
	defer hub.Unregister(sub)

	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Broadcast(account, "viewers", i)
	}

	// exactly the buffered amount arrives; the rest were dropped, and
	// Broadcast never blocked
	received := 0
	for {
		select {
		case <-sub.Events():
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestHubBusLifecyclePerAccount(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, bus, nil)
	account := uuid.New()

	s1 := hub.Register(account)
	s2 := hub.Register(account)
	assert.Len(t, bus.handlers, 1, "first subscriber opens the bus channel once")

	hub.Unregister(s1)
	assert.Zero(t, bus.cancelled)
	hub.Unregister(s2)
	assert.Equal(t, 1, bus.cancelled, "last subscriber closes the bus channel")
}

func TestHubBridgesBusEventsToLocalSubscribers(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, bus, nil)
	account := uuid.New()
	sub := hub.Register(account)
	defer hub.Unregister(sub)

	// an event arriving from another instance via the bus
	bus.handlers[account]("follow", []byte(`{"follower":"viewer1"}`))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "follow", ev.Name)
	default:
		t.Fatal("bus event was not delivered locally")
	}
}

func TestHubPublishesLocalBroadcastsToBus(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, bus, nil)
	account := uuid.New()

	hub.Broadcast(account, "session_started", map[string]string{"id": "s1"})

	assert.Equal(t, []string{"session_started"}, bus.published)
}

func TestHubBroadcastDuringSubscriberChurn(t *testing.T) {
	// Broadcasts race against subscribers joining and leaving; run with
	// -race to verify delivery never touches the subscriber map unguarded.
	hub := NewHub(nil, nil, nil)
	account := uuid.New()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s := hub.Register(account)
			hub.Unregister(s)
		}
	}()
	for i := 0; i < 200; i++ {
		hub.Broadcast(account, "viewers", i)
	}
	<-done

	assert.Zero(t, hub.SubscriberCount(account))
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	account := uuid.New()
	sub := hub.Register(account)

	hub.Unregister(sub)
	hub.Unregister(sub)

	assert.Zero(t, hub.SubscriberCount(account))
}
