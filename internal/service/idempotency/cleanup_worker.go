// Package idempotency удаляет просроченные ключи Idempotency-Key оформления.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
)

const (
	defaultCleanupInterval = 10 * time.Minute
	defaultBatchSize       = 500
	defaultMaxBatches      = 20
)

// CleanupWorker периодически удаляет ключи с истёкшим TTL.
type CleanupWorker struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	metrics    *metrics.IdempotencyMetrics
	now        func() time.Time
	interval   time.Duration
	batchSize  int
	maxBatches int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

func WithMetrics(m *metrics.IdempotencyMetrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

func WithClock(now func() time.Time) CleanupOption {
	return func(w *CleanupWorker) { w.now = now }
}

func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) { w.interval = interval }
}

// WithBatchSize задаёт число ключей, удаляемых одним запросом к хранилищу.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) { w.batchSize = size }
}

// WithMaxBatches ограничивает число запросов за один прогон; остаток дочистится в следующем.
func WithMaxBatches(n int) CleanupOption {
	return func(w *CleanupWorker) { w.maxBatches = n }
}

func NewCleanupWorker(repo domain.IdempotencyRepository, opts ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:       repo,
		interval:   defaultCleanupInterval,
		batchSize:  defaultBatchSize,
		maxBatches: defaultMaxBatches,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup")
	}
	if w.now == nil {
		w.now = func() time.Time { return time.Now().UTC() }
	}
	if w.interval <= 0 {
		w.interval = defaultCleanupInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.maxBatches <= 0 {
		w.maxBatches = defaultMaxBatches
	}
	return w
}

// Run чистит сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	deleted, err := w.Sweep(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		w.record("error", 0)
		w.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup run failed")
		return
	}

	w.record("ok", deleted)
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// Sweep удаляет ключи с TTL <= before порциями batchSize, не больше maxBatches порций.
// Возвращает число удалённых ключей, в том числе при ошибке.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for batch := 0; batch < w.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}

	w.logger.WithField("deleted", total).Debug("cleanup batch limit reached, continuing next run")
	return total, nil
}

func (w *CleanupWorker) record(result string, deleted int) {
	if w.metrics != nil {
		w.metrics.RecordCleanup(result, deleted)
	}
}
