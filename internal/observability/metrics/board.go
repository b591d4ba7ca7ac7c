// Package metrics provides Prometheus collectors for the board module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BoardMetrics contains Prometheus metrics for record engine operations.
type BoardMetrics struct {
	recordMutationsTotal *prometheus.CounterVec
	listQueriesTotal     *prometheus.CounterVec
	listQueryDuration    prometheus.Histogram
}

// NewBoardMetrics creates board metrics and registers them with the registry.
func NewBoardMetrics(registry *prometheus.Registry) (*BoardMetrics, error) {
	m := &BoardMetrics{
		recordMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadboard_record_mutations_total",
			Help: "Number of record mutations by history action",
		}, []string{"action"}),
		listQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "leadboard_list_queries_total",
			Help: "Number of list queries by cache outcome",
		}, []string{"source"}),
		listQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadboard_list_query_duration_seconds",
			Help:    "Time to shape a list query result",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{m.recordMutationsTotal, m.listQueriesTotal, m.listQueryDuration} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordMutation counts one record write. Safe to call on a nil receiver so
// callers without metrics wiring need no guards.
func (m *BoardMetrics) RecordMutation(action string) {
	if m == nil {
		return
	}
	m.recordMutationsTotal.WithLabelValues(action).Inc()
}

// ListQuery counts one list query, source is "cache" or "store".
func (m *BoardMetrics) ListQuery(source string, seconds float64) {
	if m == nil {
		return
	}
	m.listQueriesTotal.WithLabelValues(source).Inc()
	if source == "store" {
		m.listQueryDuration.Observe(seconds)
	}
}
