package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики публикации событий оформления из outbox.
type OutboxMetrics struct {
	publishAttempts  *prometheus.CounterVec
	pendingRecords   prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox в глобальном реестре.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer регистрирует метрики outbox в указанном реестре.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		publishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pdv_outbox_pending_records",
			Help: "Current number of pending records in the submission outbox.",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pdv_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordAttempt увеличивает счётчик попыток публикации с указанным результатом.
func (m *OutboxMetrics) RecordAttempt(result string) {
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	m.pendingRecords.Set(float64(pending))
	if pending == 0 || oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestPendingAge.Set(oldestAge.Seconds())
}
