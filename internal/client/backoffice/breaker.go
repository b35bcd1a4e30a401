package backoffice

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	}
	return "closed"
}

// CircuitBreaker защищает back-office API от лавины запросов при отказе.
// Пока breaker открыт, вызовы сразу завершаются domain.ErrBackofficeUnavailable.
type CircuitBreaker struct {
	mu           sync.Mutex
	maxFailures  int
	resetTimeout time.Duration

	failures    int
	lastFailure time.Time
	state       CircuitState
	logger      *log.Entry
	now         func() time.Time
	// isFailure решает, считается ли ошибка отказом сервиса (4xx — нет).
	isFailure func(error) bool
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	if maxFailures <= 0 {
		maxFailures = 1
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
		logger:       logger,
		now:          time.Now,
		isFailure:    func(err error) bool { return err != nil },
	}
}

// State возвращает текущее состояние с учётом истёкшего таймаута.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if err := cb.before(operation); err != nil {
		return err
	}

	err := fn()
	cb.after(operation, err)
	return err
}

func (cb *CircuitBreaker) before(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		cb.state = CircuitHalfOpen
		cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
		return nil
	}
	return fmt.Errorf("%s: %w", operation, domain.ErrBackofficeUnavailable)
}

func (cb *CircuitBreaker) after(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.isFailure(err) {
		cb.failures++
		cb.lastFailure = cb.now()

		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return
	}

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.failures = 0
}
