package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "notify",
		Name:      "publish_total",
		Help:      "Notifications successfully handed to the transport.",
	}, []string{"event"})

	publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "notify",
		Name:      "publish_failures_total",
		Help:      "Notifications dropped after an encode or transport error.",
	}, []string{"event", "reason"})
)
