package domain

import (
	"errors"
	"time"
)

// IdempotencyStatus — стадия обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	IdempotencyStatusDone       IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился ошибкой, её ответ тоже повторяется.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ занят тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ занят другим запросом.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// IdempotencyRecord — сохранённый исход submit или resume для ключа клиента.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       IdempotencyStatus
	HTTPStatus   int
	ResponseBody []byte
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired сообщает, что ключ можно занять заново.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// Finished сообщает, что ответ сохранён и его можно повторить клиенту.
func (r IdempotencyRecord) Finished() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// IdempotencyRepository хранит исходы запросов по Idempotency-Key.
type IdempotencyRepository interface {
	// CreateProcessing занимает ключ. Если ключ жив, возвращает его запись вместе с
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	// DeleteExpired удаляет не более limit ключей с TTL <= before.
	DeleteExpired(before time.Time, limit int) (int, error)
}
