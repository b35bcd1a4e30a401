package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
)

// stubCleanupRepo отдаёт заранее заданные результаты DeleteExpired по очереди.
type stubCleanupRepo struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	results []int
	errs    []error
	count   int
}

func (s *stubCleanupRepo) DeleteExpired(time.Time, int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.count
	s.count++

	var (
		n   int
		err error
	)
	if i < len(s.results) {
		n = s.results[i]
	}
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return n, err
}

func (s *stubCleanupRepo) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func TestCleanupWorker_Sweep(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	tests := []struct {
		name       string
		repo       *stubCleanupRepo
		maxBatches int
		deleted    int
		calls      int
		err        error
	}{
		{name: "nothing expired", repo: &stubCleanupRepo{}, deleted: 0, calls: 1},
		{name: "stops on short batch", repo: &stubCleanupRepo{results: []int{2, 2, 1}}, deleted: 5, calls: 3},
		{name: "batch limit", repo: &stubCleanupRepo{results: []int{2, 2, 2, 2}}, maxBatches: 2, deleted: 4, calls: 2},
		{name: "error keeps partial count", repo: &stubCleanupRepo{results: []int{2, 1}, errs: []error{nil, boom}}, deleted: 3, calls: 2, err: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			worker := NewCleanupWorker(tt.repo, WithBatchSize(2), WithMaxBatches(tt.maxBatches))
			deleted, err := worker.Sweep(context.Background(), time.Now().UTC())

			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.deleted, deleted)
			assert.Equal(t, tt.calls, tt.repo.calls())
		})
	}
}

func TestCleanupWorker_SweepCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &stubCleanupRepo{}
	_, err := NewCleanupWorker(repo).Sweep(ctx, time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, repo.calls())
}

func TestCleanupWorker_RemovesExpiredSubmissionKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return now })
	for i, ttl := range []time.Duration{-time.Hour, -time.Minute, -time.Second, time.Hour} {
		key := "session-1:click-" + string(rune('a'+i))
		_, err := repo.CreateProcessing(key, "POST /submit", now.Add(ttl))
		require.NoError(t, err)
	}

	registry := prometheus.NewRegistry()
	worker := NewCleanupWorker(repo,
		WithBatchSize(2),
		WithClock(func() time.Time { return now }),
		WithMetrics(metrics.NewIdempotencyMetricsWithRegisterer(registry)),
	)

	worker.runOnce(context.Background())

	assert.Equal(t, 1, repo.Len(), "only the live key remains")
	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Equal(t, float64(3), counterValue(families, "pdv_idempotency_cleanup_deleted_total"))
}

func TestCleanupWorker_Run(t *testing.T) {
	t.Parallel()

	t.Run("stops on cancel", func(t *testing.T) {
		t.Parallel()

		repo := &stubCleanupRepo{}
		worker := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			worker.Run(ctx)
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker did not stop on context cancel")
		}
		assert.Positive(t, repo.calls())
	})

	t.Run("disabled without repo", func(t *testing.T) {
		t.Parallel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			NewCleanupWorker(nil).Run(context.Background())
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("worker without repo should return immediately")
		}
	})
}

func counterValue(families []*dto.MetricFamily, name string) float64 {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
		}
	}
	return -1
}
