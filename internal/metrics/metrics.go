// Package metrics exposes the coordinator's Prometheus instrumentation,
// relabeled from services/go-orchestrator/pkg/metrics/metrics.go's
// promauto.New*Vec pattern for this system's scheduler/supervisor
// concerns instead of HTTP/RPC serving.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workers tracks current/max worker pool occupancy (§4.4).
	Workers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coordinator_workers",
			Help: "Current worker pool occupancy",
		},
		[]string{"kind"}, // "active" | "max"
	)

	// DispatchedTotal counts chunks pulled from the backlog and spawned.
	DispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_dispatched_total",
			Help: "Total number of chunks dispatched to workers",
		},
	)

	// RetriedTotal counts abnormal terminations that were respawned.
	RetriedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_retried_total",
			Help: "Total number of chunk retries after abnormal termination",
		},
	)

	// PermanentFailuresTotal counts chunks that exhausted their retry
	// budget and were reported to the client as permanently failed.
	PermanentFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coordinator_permanent_failures_total",
			Help: "Total number of chunks that exhausted their retry budget",
		},
	)

	// HookLatency observes pre/post-hook execution duration.
	HookLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coordinator_hook_duration_seconds",
			Help:    "Hook execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // "pre" | "post"
	)

	// BacklogDepth tracks the number of non-empty batches queued.
	BacklogDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coordinator_backlog_depth",
			Help: "Number of non-empty batches currently queued",
		},
	)

	// ConnectedClients tracks clients discovered by the cluster registry.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coordinator_connected_clients",
			Help: "Number of client coordinators currently discovered",
		},
	)
)

// SetWorkers records the current/max worker pool occupancy.
func SetWorkers(active, max int) {
	Workers.WithLabelValues("active").Set(float64(active))
	Workers.WithLabelValues("max").Set(float64(max))
}

// ObserveHookLatency records a hook's execution duration.
func ObserveHookLatency(kind string, d time.Duration) {
	HookLatency.WithLabelValues(kind).Observe(d.Seconds())
}
