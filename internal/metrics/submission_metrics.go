package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SubmissionMetrics содержит метрики оформления продаж и правок пассажиров.
type SubmissionMetrics struct {
	// Счётчики попыток оформления
	started   prometheus.Counter
	completed prometheus.Counter
	resumed   prometheus.Counter
	failed    *prometheus.CounterVec

	// Гистограммы времени выполнения
	duration     prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	travelersAttached prometheus.Counter
	travelerEdits     *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для попыток в процессе
	active prometheus.Gauge

	sessionsEvicted prometheus.Counter
	openSessions    prometheus.Gauge
}

// NewSubmissionMetrics создаёт метрики в глобальном реестре Prometheus.
func NewSubmissionMetrics() *SubmissionMetrics {
	return NewSubmissionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSubmissionMetricsWithRegisterer создаёт метрики в указанном реестре (удобно для тестов).
func NewSubmissionMetricsWithRegisterer(registerer prometheus.Registerer) *SubmissionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SubmissionMetrics{
		started: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_submissions_started_total",
			Help: "Total number of sale submissions started",
		}),
		completed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_submissions_completed_total",
			Help: "Total number of sale submissions completed successfully",
		}),
		resumed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_submissions_resumed_total",
			Help: "Total number of partial sales resumed",
		}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_submissions_failed_total",
			Help: "Total number of sale submissions failed, by step",
		}, []string{"step"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pdv_submission_duration_seconds",
			Help:    "Duration of sale submissions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pdv_submission_step_duration_seconds",
			Help:    "Duration of individual submission steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		travelersAttached: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_travelers_attached_total",
			Help: "Total number of travelers attached to sales",
		}),
		travelerEdits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_traveler_edits_total",
			Help: "Traveler field edits grouped by result",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_timeline_events_total",
			Help: "Total number of submission timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		active: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pdv_active_submissions",
			Help: "Number of sale submissions currently in flight",
		}),
		sessionsEvicted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_sessions_evicted_total",
			Help: "Total number of idle cart sessions closed",
		}),
		openSessions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pdv_open_sessions",
			Help: "Number of open cart sessions",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordStarted увеличивает счётчик попыток и число активных.
func (m *SubmissionMetrics) RecordStarted() {
	m.started.Inc()
	m.active.Inc()
}

// RecordResumed увеличивает счётчик продолженных продаж и число активных.
func (m *SubmissionMetrics) RecordResumed() {
	m.resumed.Inc()
	m.active.Inc()
}

// RecordFinished уменьшает число активных попыток.
func (m *SubmissionMetrics) RecordFinished() {
	m.active.Dec()
}

// RecordCompleted увеличивает счётчик успешных продаж.
func (m *SubmissionMetrics) RecordCompleted() {
	m.completed.Inc()
}

// RecordFailed увеличивает счётчик неудачных попыток по шагу.
func (m *SubmissionMetrics) RecordFailed(step string) {
	m.failed.WithLabelValues(step).Inc()
}

// RecordDuration записывает время выполнения попытки.
func (m *SubmissionMetrics) RecordDuration(duration time.Duration) {
	m.duration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага.
func (m *SubmissionMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordTravelerAttached увеличивает счётчик прикреплённых пассажиров.
func (m *SubmissionMetrics) RecordTravelerAttached() {
	m.travelersAttached.Inc()
}

// RecordTravelerEdit учитывает исход правки поля пассажира.
func (m *SubmissionMetrics) RecordTravelerEdit(result string) {
	m.travelerEdits.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий журнала.
func (m *SubmissionMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SubmissionMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordSessionsEvicted учитывает закрытые по простою сессии.
func (m *SubmissionMetrics) RecordSessionsEvicted(n int) {
	m.sessionsEvicted.Add(float64(n))
}

// SetOpenSessions выставляет число открытых сессий.
func (m *SubmissionMetrics) SetOpenSessions(n int) {
	m.openSessions.Set(float64(n))
}
