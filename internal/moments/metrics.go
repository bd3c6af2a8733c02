package moments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	momentsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_moments_detected_total",
		Help: "Moments created by the spike detector.",
	})
	momentsAutoClipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streampulse_moments_auto_clipped_total",
		Help: "Moments clipped automatically by the auto action.",
	})
)
