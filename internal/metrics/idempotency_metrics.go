package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IdempotencyMetrics — метрики ключей идемпотентности оформления.
type IdempotencyMetrics struct {
	requests       *prometheus.CounterVec
	cleanupRuns    *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
	lastDeleted    prometheus.Gauge
}

// NewIdempotencyMetrics регистрирует метрики в глобальном реестре.
func NewIdempotencyMetrics() *IdempotencyMetrics {
	return NewIdempotencyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewIdempotencyMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewIdempotencyMetricsWithRegisterer(registerer prometheus.Registerer) *IdempotencyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &IdempotencyMetrics{
		requests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_idempotency_requests_total",
			Help: "Total number of keyed submission requests grouped by outcome.",
		}, []string{"outcome"}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		lastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pdv_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// RecordRequest учитывает исход запроса с ключом: executed, replayed, in_progress, mismatch.
func (m *IdempotencyMetrics) RecordRequest(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

// RecordCleanup учитывает прогон очистки.
func (m *IdempotencyMetrics) RecordCleanup(result string, deleted int) {
	m.cleanupRuns.WithLabelValues(result).Inc()
	if result != "ok" {
		return
	}
	m.cleanupDeleted.Add(float64(deleted))
	m.lastDeleted.Set(float64(deleted))
}
