package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

var (
	// errInvalidBody — тело запроса не разобрано или не прошло проверку тегов.
	errInvalidBody = errors.New("invalid request body")
	// errBodyTooLarge — тело длиннее maxRequestBodyBytes.
	errBodyTooLarge = errors.New("request body too large")
)

// SuccessEnvelope — успешный ответ API.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope — ответ API с ошибкой.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError — код из таксономии ошибок движка, сообщение и детали (поля, шаг саги).
type APIError struct {
	Code    domain.ErrorKind `json:"code"`
	Message string           `json:"message"`
	Details any              `json:"details,omitempty"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeSuccessStatus(w, http.StatusOK, data)
}

func writeSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// writeError пишет ошибку; details может быть nil, тогда берутся поля FieldError.
func writeError(logger *log.Entry, w http.ResponseWriter, err error, details any) {
	if err == nil {
		err = errors.New("unknown error")
	}

	status, kind := classify(err)
	message := err.Error()
	if kind == domain.KindInternal {
		message = "internal error"
	}

	if details == nil {
		var fieldErr *domain.FieldError
		if errors.As(err, &fieldErr) && len(fieldErr.Fields) > 0 {
			details = map[string]any{"fields": fieldErr.Fields}
		}
	}

	entry := logger.WithError(err).WithFields(log.Fields{
		"error_code": kind,
		"status":     status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	writeJSON(w, status, ErrorEnvelope{Error: APIError{Code: kind, Message: message, Details: details}})
}

// classify сопоставляет ошибку с HTTP-статусом.
func classify(err error) (int, domain.ErrorKind) {
	if errors.Is(err, errBodyTooLarge) {
		return http.StatusRequestEntityTooLarge, domain.KindValidation
	}
	if errors.Is(err, errInvalidBody) {
		return http.StatusBadRequest, domain.KindValidation
	}

	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity, kind
	case domain.KindNotFound:
		return http.StatusNotFound, kind
	case domain.KindConflict:
		return http.StatusConflict, kind
	case domain.KindRemoteFailure:
		return http.StatusBadGateway, kind
	}
	return http.StatusInternalServerError, domain.KindInternal
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}
