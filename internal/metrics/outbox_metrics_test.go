package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordAttempt("sent")
	m.RecordAttempt("sent")
	m.RecordAttempt("retry_error")

	if got := counterValue(t, m.publishAttempts.WithLabelValues("sent")); got != 2 {
		t.Fatalf("expected 2 sent attempts, got %f", got)
	}
	if got := counterValue(t, m.publishAttempts.WithLabelValues("retry_error")); got != 1 {
		t.Fatalf("expected 1 retry error, got %f", got)
	}

	m.SetBacklog(3, 2*time.Second)
	if got := gaugeValue(t, m.pendingRecords); got != 3 {
		t.Fatalf("expected 3 pending records, got %f", got)
	}
	if got := gaugeValue(t, m.oldestPendingAge); got != 2 {
		t.Fatalf("expected oldest age 2s, got %f", got)
	}

	m.SetBacklog(0, time.Minute)
	if got := gaugeValue(t, m.oldestPendingAge); got != 0 {
		t.Fatalf("expected oldest age reset to 0, got %f", got)
	}
}

func TestIdempotencyMetrics(t *testing.T) {
	m := NewIdempotencyMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordRequest("executed")
	m.RecordRequest("replayed")
	m.RecordRequest("replayed")
	if got := counterValue(t, m.requests.WithLabelValues("replayed")); got != 2 {
		t.Fatalf("expected 2 replayed requests, got %f", got)
	}

	m.RecordCleanup("ok", 3)
	m.RecordCleanup("error", 0)
	m.RecordCleanup("ok", 0)
	if got := counterValue(t, m.cleanupDeleted); got != 3 {
		t.Fatalf("expected 3 deleted total, got %f", got)
	}
	if got := gaugeValue(t, m.lastDeleted); got != 0 {
		t.Fatalf("expected last deleted 0, got %f", got)
	}
	if got := counterValue(t, m.cleanupRuns.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed run, got %f", got)
	}
}
