package domain

import (
	"fmt"
	"testing"
	"time"
)

func TestIdempotencyRecord_ExpiredAndFinished(t *testing.T) {
	now := time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		record   IdempotencyRecord
		expired  bool
		finished bool
	}{
		{name: "processing", record: IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Minute)}},
		{name: "done", record: IdempotencyRecord{Status: IdempotencyStatusDone, TTLAt: now.Add(time.Minute)}, finished: true},
		{name: "failed", record: IdempotencyRecord{Status: IdempotencyStatusFailed, TTLAt: now.Add(time.Minute)}, finished: true},
		{name: "ttl equals now", record: IdempotencyRecord{Status: IdempotencyStatusDone, TTLAt: now}, expired: true, finished: true},
		{name: "ttl in past", record: IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(-time.Second)}, expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Expired(now); got != tt.expired {
				t.Errorf("Expired() = %v, want %v", got, tt.expired)
			}
			if got := tt.record.Finished(); got != tt.finished {
				t.Errorf("Finished() = %v, want %v", got, tt.finished)
			}
		})
	}
}

func TestIdempotencyStatusValid(t *testing.T) {
	for _, s := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if IdempotencyStatus("pending").Valid() {
		t.Error("unknown status should be invalid")
	}
}

func TestIdempotencyErrorsAreConflicts(t *testing.T) {
	for _, err := range []error{
		ErrIdempotencyKeyAlreadyExists,
		fmt.Errorf("submit: %w", ErrIdempotencyHashMismatch),
	} {
		if got := KindOf(err); got != KindConflict {
			t.Errorf("KindOf(%v) = %s, want %s", err, got, KindConflict)
		}
	}
	if got := KindOf(ErrIdempotencyKeyRequired); got == KindConflict {
		t.Errorf("missing key must not be a conflict")
	}
}
