// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_sync_runs_total",
			Help: "Total number of content sync runs by status",
		},
		[]string{"status"},
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "content_sync_run_duration_seconds",
			Help:    "Duration of content sync runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	SyncItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_sync_items_total",
			Help: "Upstream content items processed by result (new, updated, unchanged, invalid, error)",
		},
		[]string{"result"},
	)

	PushCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comment_push_cycles_total",
			Help: "Comment push cycles by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Outbound requests to upstream APIs by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
