// Package metrics exposes Prometheus collectors for the reconciliation
// engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the client-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upvote_client",
			Subsystem: "engine",
			Name:      "poll_cycles_total",
			Help:      "Total number of completed poll cycles.",
		},
		[]string{"kind"},
	)

	cycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upvote_client",
			Subsystem: "engine",
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of poll cycles, fan-out to fan-in.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"kind"},
	)

	fetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upvote_client",
			Subsystem: "engine",
			Name:      "fetch_failures_total",
			Help:      "Total number of per-item status fetches that failed.",
		},
		[]string{"kind"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upvote_client",
			Subsystem: "engine",
			Name:      "transitions_total",
			Help:      "Total number of detected status transitions.",
		},
		[]string{"kind", "status"},
	)

	trackedItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upvote_client",
			Subsystem: "engine",
			Name:      "tracked_items",
			Help:      "Current number of non-terminal tracked items.",
		},
		[]string{"kind"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upvote_client",
			Subsystem: "notify",
			Name:      "dispatched_total",
			Help:      "Total number of user-visible notifications dispatched.",
		},
		[]string{"variant"},
	)
)

func init() {
	Registry.MustRegister(
		pollCycles,
		cycleDuration,
		fetchFailures,
		transitions,
		trackedItems,
		notifications,
	)
}

// RecordPollCycle records one completed cycle and its duration.
func RecordPollCycle(kind string, duration time.Duration) {
	pollCycles.WithLabelValues(kind).Inc()
	cycleDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordFetchFailure records one failed per-item fetch.
func RecordFetchFailure(kind string) {
	fetchFailures.WithLabelValues(kind).Inc()
}

// RecordTransition records one detected transition into the given status.
func RecordTransition(kind, status string) {
	transitions.WithLabelValues(kind, status).Inc()
}

// SetTrackedItems records the current non-terminal tracked item count.
func SetTrackedItems(kind string, count int) {
	trackedItems.WithLabelValues(kind).Set(float64(count))
}

// RecordNotification records one dispatched notification.
func RecordNotification(variant string) {
	notifications.WithLabelValues(variant).Inc()
}
