package cart

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultEvictionInterval = 5 * time.Minute
	defaultSessionIdleTTL   = 12 * time.Hour
)

// EvictionRecorder учитывает вытеснение сессий.
type EvictionRecorder interface {
	RecordSessionsEvicted(n int)
	SetOpenSessions(n int)
}

// EvictionWorker периодически закрывает сессии, простаивающие дольше idleTTL.
type EvictionWorker struct {
	store    *Store
	logger   *log.Entry
	metrics  EvictionRecorder
	now      func() time.Time
	interval time.Duration
	idleTTL  time.Duration
}

// EvictionOption настраивает EvictionWorker.
type EvictionOption func(*EvictionWorker)

func WithEvictionLogger(logger *log.Entry) EvictionOption {
	return func(w *EvictionWorker) { w.logger = logger }
}

func WithEvictionMetrics(m EvictionRecorder) EvictionOption {
	return func(w *EvictionWorker) { w.metrics = m }
}

func WithEvictionClock(now func() time.Time) EvictionOption {
	return func(w *EvictionWorker) { w.now = now }
}

func WithEvictionInterval(interval time.Duration) EvictionOption {
	return func(w *EvictionWorker) { w.interval = interval }
}

// WithIdleTTL задаёт простой, после которого сессия закрывается. Ноль или меньше отключает вытеснение.
func WithIdleTTL(ttl time.Duration) EvictionOption {
	return func(w *EvictionWorker) { w.idleTTL = ttl }
}

func NewEvictionWorker(store *Store, opts ...EvictionOption) *EvictionWorker {
	w := &EvictionWorker{
		store:    store,
		interval: defaultEvictionInterval,
		idleTTL:  defaultSessionIdleTTL,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "session-eviction")
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.interval <= 0 {
		w.interval = defaultEvictionInterval
	}
	return w
}

// Run вытесняет сразу и затем раз в interval до отмены ctx.
func (w *EvictionWorker) Run(ctx context.Context) {
	if w.store == nil || w.idleTTL <= 0 {
		w.logger.Warn("session eviction is disabled")
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

func (w *EvictionWorker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	evicted := w.store.EvictIdle(w.now().Add(-w.idleTTL))
	open := w.store.Len()
	if w.metrics != nil {
		w.metrics.RecordSessionsEvicted(evicted)
		w.metrics.SetOpenSessions(open)
	}
	if evicted > 0 {
		w.logger.WithFields(log.Fields{"evicted": evicted, "open": open}).Info("idle sessions closed")
	}
}
