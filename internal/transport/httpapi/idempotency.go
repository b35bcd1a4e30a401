package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

const (
	// IdempotencyKeyHeader — заголовок клиента с ключом повтора оформления.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader выставляется на ответах, взятых из сохранённой записи.
	IdempotentReplayHeader = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKeyLen  = 128
)

const (
	idempotencyExecuted   = "executed"
	idempotencyReplayed   = "replayed"
	idempotencyInProgress = "in_progress"
	idempotencyMismatch   = "mismatch"
)

var errIdempotencyKeyTooLong = fmt.Errorf("%w: key longer than %d characters", errInvalidBody, maxIdempotencyKeyLen)

// panicResponseBody сохраняется для ключа, если обработчик упал с panic; совпадает с ответом recoverer.
var panicResponseBody = mustMarshal(ErrorEnvelope{Error: APIError{Code: domain.KindInternal, Message: "internal error"}})

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return append(b, '\n')
}

// idempotent защищает шаг оформления от повторной отправки с тем же Idempotency-Key.
// Первый запрос выполняется, итоговый ответ сохраняется и отдаётся повторным запросам как есть.
// Без заголовка запрос проходит без изменений.
func (h *Handler) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if h.idempotency == nil || rawKey == "" {
			next(w, r)
			return
		}
		if len(rawKey) > maxIdempotencyKeyLen {
			writeError(h.logger, w, errIdempotencyKeyTooLong, nil)
			return
		}

		hash, err := requestHash(w, r)
		if err != nil {
			writeError(h.logger, w, bodyError(err), nil)
			return
		}

		// Ключ действует в пределах сессии: одинаковые ключи разных терминалов не пересекаются.
		key := chi.URLParam(r, "sessionID") + ":" + rawKey
		logger := h.logger.WithFields(log.Fields{"idempotency_key": rawKey, "path": r.URL.Path})

		existing, err := h.idempotency.CreateProcessing(key, hash, h.now().Add(h.idempotencyTTL))
		if err != nil {
			h.rejectOrReplay(w, logger, existing, err)
			return
		}

		finished := false
		defer func() {
			// panic в next: ключ не должен остаться в processing до истечения TTL.
			if finished {
				return
			}
			if err := h.idempotency.MarkFailed(key, panicResponseBody, http.StatusInternalServerError); err != nil {
				logger.WithError(err).Warn("failed to release idempotency key after panic")
			}
			h.recordIdempotency(idempotencyExecuted)
		}()

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		var body bytes.Buffer
		ww.Tee(&body)
		next(ww, r)
		finished = true

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		mark := h.idempotency.MarkDone
		if status >= http.StatusBadRequest {
			mark = h.idempotency.MarkFailed
		}
		if err := mark(key, body.Bytes(), status); err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
		h.recordIdempotency(idempotencyExecuted)
	}
}

func (h *Handler) rejectOrReplay(w http.ResponseWriter, logger *log.Entry, existing domain.IdempotencyRecord, err error) {
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		h.recordIdempotency(idempotencyMismatch)
		writeError(logger, w, err, nil)
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) && !existing.Finished():
		h.recordIdempotency(idempotencyInProgress)
		writeError(logger, w, fmt.Errorf("%w: request is still processing", err), nil)
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		h.recordIdempotency(idempotencyReplayed)
		logger.WithField("status", existing.HTTPStatus).Debug("replaying stored response")
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(IdempotentReplayHeader, "true")
		w.WriteHeader(existing.HTTPStatus)
		if _, werr := w.Write(existing.ResponseBody); werr != nil {
			logger.WithError(werr).Warn("failed to write replayed response")
		}
	default:
		writeError(logger, w, err, nil)
	}
}

func (h *Handler) recordIdempotency(outcome string) {
	if h.idempotencyMetrics != nil {
		h.idempotencyMetrics.RecordRequest(outcome)
	}
}

// requestHash считает отпечаток запроса: метод, путь и тело. Тело читается не больше
// maxRequestBodyBytes и возвращается в запрос.
func requestHash(w http.ResponseWriter, r *http.Request) (string, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
		if err != nil {
			return "", err
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{'\n'})
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte{'\n'})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil)), nil
}
