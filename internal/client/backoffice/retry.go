package backoffice

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// RetryConfig конфигурация повторов для идемпотентных чтений.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
	}
}

// executeWithRetry повторяет чтение при временных ошибках.
// Мутации через него не проходят: повтор неидемпотентного вызова может создать дубль.
func (c *Client) executeWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("backoffice read succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == attempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).Warn("backoffice read failed, retrying")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		// Экспоненциальная задержка с ограничением
		delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
		if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}

	return lastErr
}

// shouldRetry определяет, стоит ли повторять чтение при данной ошибке.
func shouldRetry(err error) bool {
	if errors.Is(err, domain.ErrBackofficeUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}

	// Сетевые ошибки повторяем
	return true
}

// isServiceFailure — ошибки, которые считает circuit breaker: сеть, 5xx и 429.
func isServiceFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}
