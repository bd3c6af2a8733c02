package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streampulse_realtime_subscribers",
		Help: "Currently connected dashboard subscribers.",
	})
	eventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_realtime_events_delivered_total",
		Help: "Events delivered to local subscriber queues.",
	})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_realtime_events_dropped_total",
		Help: "Events dropped because a subscriber queue was full.",
	})
)
