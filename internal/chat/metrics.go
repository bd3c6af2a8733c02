package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSeen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_chat_messages_total",
		Help: "Chat messages observed across all listeners.",
	})
	messagesSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_chat_messages_sampled_total",
		Help: "Chat messages persisted as raw samples.",
	})
	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_chat_reconnects_total",
		Help: "Chat listener reconnect attempts.",
	})
)
