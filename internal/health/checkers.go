package health

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/client/backoffice"
	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// BreakerChecker отражает состояние circuit breaker back-office API.
type BreakerChecker struct {
	name    string
	breaker *backoffice.CircuitBreaker
}

// NewBreakerChecker создаёт проверку back-office по состоянию breaker.
func NewBreakerChecker(name string, breaker *backoffice.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

// Check: open — unhealthy, half-open — degraded.
func (c *BreakerChecker) Check() Check {
	start := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}

	switch state := c.breaker.State(); state {
	case backoffice.CircuitOpen:
		check.Status = StatusUnhealthy
		check.Message = "circuit breaker is open"
	case backoffice.CircuitHalfOpen:
		check.Status = StatusDegraded
		check.Message = "circuit breaker is half-open"
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

// OutboxChecker помечает сервис degraded, если backlog outbox превышает порог.
type OutboxChecker struct {
	name       string
	repo       domain.OutboxRepository
	maxPending int
}

// NewOutboxChecker создаёт проверку backlog outbox.
func NewOutboxChecker(name string, repo domain.OutboxRepository, maxPending int) *OutboxChecker {
	return &OutboxChecker{name: name, repo: repo, maxPending: maxPending}
}

// Check выполняет проверку
func (c *OutboxChecker) Check() Check {
	start := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}

	stats, err := c.repo.Stats()
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.maxPending > 0 && stats.PendingCount > c.maxPending:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending outbox records", stats.PendingCount)
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
