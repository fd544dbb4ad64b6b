package pgxtrail

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for audit query execution.
// A nil *Metrics disables recording, so callers never need to guard.
type Metrics struct {
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates the audit query instruments and registers them on
// reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audittrail_queries_total",
				Help: "Total number of audit queries by entity, operation and status",
			},
			[]string{"entity", "operation", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audittrail_query_duration_seconds",
				Help:    "Duration of audit queries in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.QueriesTotal, m.QueryDuration)
	}
	return m
}

// RecordQuery records one audit query round-trip.
func (m *Metrics) RecordQuery(entity, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(entity, operation, status).Inc()
	m.QueryDuration.WithLabelValues(entity, operation).Observe(duration.Seconds())
}
