package quorum

import "github.com/prometheus/client_golang/prometheus"

var (
	roundCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treekv",
			Subsystem: "quorum",
			Name:      "rounds_total",
			Help:      "Counter of quorum rounds.",
		}, []string{"type"})

	roundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "treekv",
			Subsystem: "quorum",
			Name:      "round_duration_seconds",
			Help:      "Bucketed histogram of quorum round time (s), including the slowest server.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
		}, []string{"type"})

	serverFailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "treekv",
			Subsystem: "quorum",
			Name:      "server_failures_total",
			Help:      "Counter of servers that did not answer a round.",
		}, []string{"server", "reason"})
)

func init() {
	prometheus.MustRegister(roundCounter)
	prometheus.MustRegister(roundDuration)
	prometheus.MustRegister(serverFailureCounter)
}
