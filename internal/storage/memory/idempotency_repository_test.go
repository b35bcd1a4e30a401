package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing("s1:key-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected status %s, got %s", domain.IdempotencyStatusProcessing, created.Status)
	}

	got, err := repo.Get("s1:key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != "hash-1" || !got.TTLAt.Equal(ttl) {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing("key-2", "hash-a", ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}

	existing, err := repo.CreateProcessing("key-2", "hash-a", ttl)
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected existing record to be returned, got %+v", existing)
	}

	if _, err := repo.CreateProcessing("key-2", "hash-b", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	repo := memory.NewIdempotencyRepository()

	if _, err := repo.CreateProcessing(" ", "hash", time.Time{}); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.CreateProcessing("key", "", time.Time{}); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
	if err := repo.MarkDone("unknown", nil, 201); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_ExpiredKeyCanBeReused(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return now })

	if _, err := repo.CreateProcessing("key", "hash-a", now.Add(time.Minute)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if err := repo.MarkDone("key", []byte(`{"data":{}}`), 201); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	now = now.Add(2 * time.Minute)
	created, err := repo.CreateProcessing("key", "hash-b", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("expired key should be reusable, got %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing || len(created.ResponseBody) != 0 {
		t.Fatalf("expected fresh record, got %+v", created)
	}
}

func TestIdempotencyRepository_MarkAndDeleteExpired(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewIdempotencyRepositoryWithClock(func() time.Time { return now })

	for _, key := range []string{"expired-1", "expired-2"} {
		if _, err := repo.CreateProcessing(key, "hash", now.Add(-time.Minute)); err != nil {
			t.Fatalf("CreateProcessing %s failed: %v", key, err)
		}
	}
	if _, err := repo.CreateProcessing("active", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing active failed: %v", err)
	}
	if err := repo.MarkFailed("active", []byte(`{"error":{}}`), 502); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	active, err := repo.Get("active")
	if err != nil {
		t.Fatalf("Get active failed: %v", err)
	}
	if active.Status != domain.IdempotencyStatusFailed || active.HTTPStatus != 502 {
		t.Fatalf("unexpected active record: %+v", active)
	}

	deleted, err := repo.DeleteExpired(now, 1)
	if err != nil || deleted != 1 {
		t.Fatalf("expected 1 deleted with limit, got %d (%v)", deleted, err)
	}
	deleted, err = repo.DeleteExpired(now, 10)
	if err != nil || deleted != 1 {
		t.Fatalf("expected remaining expired record deleted, got %d (%v)", deleted, err)
	}
	if repo.Len() != 1 {
		t.Fatalf("expected only active key left, got %d", repo.Len())
	}
}
