// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MonitoringRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitoring_runs_total",
			Help: "Total number of monitoring runs by terminal status",
		},
		[]string{"status"},
	)

	MonitoringRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitoring_run_duration_seconds",
			Help:    "Duration of a full monitoring run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	SourceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_calls_total",
			Help: "Total calls to external sources by outcome",
		},
		[]string{"source", "outcome"},
	)

	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"source", "to"},
	)

	EventsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_created_total",
			Help: "New events created, by category",
		},
		[]string{"category"},
	)

	DuplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicates_suppressed_total",
			Help: "Items suppressed by deduplication, by stage",
		},
		[]string{"stage"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications dispatched by channel and status",
		},
		[]string{"channel", "status"},
	)
)
