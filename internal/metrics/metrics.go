/**
 * @description
 * Prometheus collectors for the ledger service, registered on the default
 * registry and exposed via /metrics.
 */
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts ledger operations by kind and outcome
	// (applied or rejected).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_operations_total",
		Help: "Total number of ledger operations processed.",
	}, []string{"kind", "outcome"})

	// VersionConflictRetries counts optimistic-concurrency retries across all
	// operations.
	VersionConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_version_conflict_retries_total",
		Help: "Total number of version-conflict commit retries.",
	})

	// OperationDuration observes end-to-end operation latency in seconds.
	OperationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wallet_operation_duration_seconds",
		Help:    "Latency of ledger operations.",
		Buckets: prometheus.DefBuckets,
	})
)
