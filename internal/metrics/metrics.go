// Package metrics provides Prometheus metrics for the meta store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the store-level Prometheus collectors.
type Metrics struct {
	RelationOpsTotal   *prometheus.CounterVec
	RelationOpDuration *prometheus.HistogramVec
	ScopeQueriesTotal  prometheus.Counter
	ArchiveWritesTotal prometheus.Counter
}

// New creates and registers the collectors against the given registerer.
// Passing prometheus.DefaultRegisterer wires the process-global registry;
// tests pass a fresh one to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RelationOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "metastore_relation_operations_total",
				Help: "Total number of meta relation operations",
			},
			[]string{"operation", "status"},
		),
		RelationOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "metastore_relation_operation_duration_seconds",
				Help:    "Duration of meta relation operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		ScopeQueriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metastore_scope_queries_total",
				Help: "Total number of meta scope queries executed",
			},
		),
		ArchiveWritesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metastore_archive_writes_total",
				Help: "Total number of meta snapshots written to the archive",
			},
		),
	}
}

// RecordRelationOp records one relation operation with its outcome.
func (m *Metrics) RecordRelationOp(operation, status string, duration time.Duration) {
	m.RelationOpsTotal.WithLabelValues(operation, status).Inc()
	m.RelationOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
