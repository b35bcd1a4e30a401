package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultRetryMaxDelay  = 5 * time.Second
)

// Результаты попыток для pdv_outbox_publish_attempts_total.
const (
	attemptSent       = "sent"
	attemptRetryError = "retry_error"
	attemptFailed     = "failed"
	attemptDLQFailed  = "dlq_failed"
)

// Worker доставляет события оформления из outbox в брокер.
// Сообщение, не ушедшее за maxAttempts попыток, уходит в DLQ и помечается failed.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlqPublisher   domain.OutboxPublisher
	logger         *log.Entry
	metrics        *metrics.OutboxMetrics
	now            func() time.Time
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// Option настраивает Worker.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithClock подменяет время для возраста backlog и отметки DLQ.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithDLQPublisher включает отправку в DLQ после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlqPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollInterval = interval }
}

func WithBatchSize(size int) Option {
	return func(w *Worker) { w.batchSize = size }
}

func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) { w.maxAttempts = attempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
// Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = delay }
}

// WithRetryMaxDelay ограничивает паузу между попытками.
func WithRetryMaxDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryMaxDelay = delay }
}

// NewWorker создаёт воркер; некорректные значения опций заменяются значениями по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.retryBaseDelay < 0 {
		w.retryBaseDelay = 0
	}
	if w.retryMaxDelay <= 0 {
		w.retryMaxDelay = defaultRetryMaxDelay
	}
	return w
}

// Run опрашивает outbox до отмены ctx. Первый цикл выполняется сразу.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает один батч и доставляет его по порядку.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer w.refreshBacklog()

	batch, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, msg)
	}
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) {
	logger := w.logger.WithFields(log.Fields{"outbox_id": msg.ID, "event_type": msg.EventType})

	err := w.publishWithRetry(ctx, msg)
	switch {
	case err == nil:
		if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
			logger.WithError(markErr).Warn("failed to mark outbox as sent")
		}
		return
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Остановка сервиса: сообщение остаётся pending до следующего запуска.
		logger.Debug("outbox delivery interrupted")
		return
	}

	logger.WithError(err).Error("outbox publish failed after retries")
	w.record(attemptFailed)

	if dlqErr := w.sendToDLQ(msg, err); dlqErr != nil {
		logger.WithError(dlqErr).Warn("failed to publish to DLQ")
		w.record(attemptDLQFailed)
	}
	if markErr := w.repo.MarkFailed(msg.ID); markErr != nil {
		logger.WithError(markErr).Warn("failed to mark outbox as failed")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(msg); lastErr == nil {
			w.record(attemptSent)
			return nil
		}
		w.record(attemptRetryError)

		if attempt == w.maxAttempts {
			break
		}
		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", w.maxAttempts, lastErr)
}

// retryBackoff — пауза после попытки attempt: base * 2^(attempt-1), не больше retryMaxDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay >= w.retryMaxDelay/2 {
			return w.retryMaxDelay
		}
		delay *= 2
	}
	if delay > w.retryMaxDelay {
		return w.retryMaxDelay
	}
	return delay
}

// deadLetter — payload сообщения DLQ; его читает dlq-replay.
type deadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	Attempts       int             `json:"attempts"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) sendToDLQ(msg domain.OutboxMessage, publishErr error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	body, err := json.Marshal(deadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        payload,
		PublishError:   publishErr.Error(),
		Attempts:       w.maxAttempts,
		DLQPublishedAt: w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := msg
	dead.Payload = body
	if err := w.dlqPublisher.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) record(result string) {
	if w.metrics != nil {
		w.metrics.RecordAttempt(result)
	}
}

func (w *Worker) refreshBacklog() {
	if w.metrics == nil {
		return
	}
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	var age time.Duration
	if !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}
