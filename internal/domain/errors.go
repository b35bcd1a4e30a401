package domain

import (
	"errors"
	"sort"
	"strings"
)

var (
	// Корзина и позиции.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrDuplicateService — сигнал DuplicateServiceWarning: позиция с этой услугой уже есть, нужно подтверждение.
	ErrDuplicateService = errors.New("service already in cart, confirmation required")
	// Ошибка некорректного количества мест (< 1).
	ErrQuantityInvalid = errors.New("quantity must be at least one")
	// Ошибка, если все места позиции уже распределены.
	ErrLineFull = errors.New("cart line has no free slots for travelers")
	// Ошибка при попытке изменить корзину во время отправки.
	ErrSubmissionInProgress = errors.New("sale submission in progress")
	ErrServiceRequired      = errors.New("service_id is required")

	// Места.
	ErrSeatConflict          = errors.New("seat already occupied")
	ErrInvalidSeat           = errors.New("seat number out of range")
	ErrTravelerAlreadySeated = errors.New("traveler already has a seat on this line")
	ErrTravelerNotCandidate  = errors.New("traveler is not selected for this line")

	// Пассажиры.
	ErrTravelerNotFound      = errors.New("traveler not found")
	ErrTravelerInvalid       = errors.New("traveler fields invalid")
	ErrTravelerFieldUnknown  = errors.New("traveler field is not editable")
	ErrTravelerLookupEmpty   = errors.New("lookup value is required")
	ErrNoActiveLine          = errors.New("no active cart line")
	ErrTravelerCompanyNeeded = errors.New("company_id is required")

	// Справочники.
	ErrCustomerNotFound = errors.New("customer not found")
	ErrTripNotFound     = errors.New("trip not found")
	ErrSellerNotFound   = errors.New("seller not found")
	ErrSessionNotFound  = errors.New("cart session not found")

	// Цены и оплата.
	ErrAdjustmentNegative    = errors.New("adjustment amount must be non-negative")
	ErrAdjustmentKindInvalid = errors.New("adjustment mode must be fixed or percent")
	ErrPaymentMethodInvalid  = errors.New("payment method is not supported")
	ErrInstallmentsInvalid   = errors.New("installments must be at least one")
	ErrInterestRateNegative  = errors.New("interest rate must be non-negative")

	// Предусловия оформления.
	ErrCustomerRequired    = errors.New("customer is required")
	ErrSellerRequired      = errors.New("seller is required")
	ErrCartEmpty           = errors.New("cart must contain at least one line")
	ErrMultipleLines       = errors.New("only single-line carts can be submitted")
	ErrNoSeatedTravelers   = errors.New("primary line has no seat-assigned travelers")
	ErrNoDraftToResume     = errors.New("no partial sale to resume")
	ErrDraftCartMismatch   = errors.New("cart changed since the partial sale was created")
	ErrSubmissionCancelled = errors.New("submission cancelled before sale creation")

	// ErrRemoteFailure — любой шаг саги завершился ошибкой удалённого вызова.
	ErrRemoteFailure = errors.New("remote call failed")
	// ErrBackofficeUnavailable — удалённый API недоступен (circuit breaker открыт).
	ErrBackofficeUnavailable = errors.New("backoffice api unavailable")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind — таксономия ошибок движка.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindConflict      ErrorKind = "conflict"
	KindRemoteFailure ErrorKind = "remote_failure"
	KindInternal      ErrorKind = "internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrRemoteFailure, KindRemoteFailure},
	{ErrBackofficeUnavailable, KindRemoteFailure},
	{ErrLineNotFound, KindNotFound},
	{ErrTravelerNotFound, KindNotFound},
	{ErrCustomerNotFound, KindNotFound},
	{ErrTripNotFound, KindNotFound},
	{ErrSellerNotFound, KindNotFound},
	{ErrSessionNotFound, KindNotFound},
	{ErrNoDraftToResume, KindNotFound},
	{ErrDuplicateService, KindConflict},
	{ErrSubmissionInProgress, KindConflict},
	{ErrDraftCartMismatch, KindConflict},
	{ErrIdempotencyKeyAlreadyExists, KindConflict},
	{ErrIdempotencyHashMismatch, KindConflict},
}

// KindOf классифицирует ошибку; неизвестные ошибки, кроме валидационных, считаются внутренними.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindBySentinel {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	if IsValidation(err) {
		return KindValidation
	}
	return KindInternal
}

var validationSentinels = []error{
	ErrQuantityInvalid, ErrLineFull, ErrServiceRequired, ErrSeatConflict, ErrInvalidSeat,
	ErrTravelerAlreadySeated, ErrTravelerNotCandidate,
	ErrTravelerInvalid, ErrTravelerFieldUnknown, ErrTravelerLookupEmpty, ErrNoActiveLine,
	ErrTravelerCompanyNeeded, ErrAdjustmentNegative, ErrAdjustmentKindInvalid,
	ErrPaymentMethodInvalid, ErrInstallmentsInvalid, ErrInterestRateNegative,
	ErrCustomerRequired, ErrSellerRequired, ErrCartEmpty, ErrMultipleLines,
	ErrNoSeatedTravelers, ErrSubmissionCancelled, ErrIdempotencyKeyRequired,
}

// IsValidation проверяет, является ли ошибка локальной (до удалённого вызова).
func IsValidation(err error) bool {
	for _, s := range validationSentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

// IsNotFound проверяет, является ли ошибка штатным промахом поиска.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// FieldError — ошибка валидации с сообщениями по полям.
type FieldError struct {
	Cause  error
	Fields map[string]string
}

// NewFieldError создаёт ошибку валидации полей.
func NewFieldError(cause error, fields map[string]string) *FieldError {
	return &FieldError{Cause: cause, Fields: fields}
}

func (e *FieldError) Error() string {
	if len(e.Fields) == 0 {
		return e.Cause.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return e.Cause.Error() + ": " + strings.Join(parts, ", ")
}

func (e *FieldError) Unwrap() error {
	return e.Cause
}
