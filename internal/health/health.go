// Package health отдаёт /healthz, /livez и /readyz сервиса.
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/version"
)

// Status — состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return 0
	}
}

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Service       string           `json:"service"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check() Check
}

// Handler собирает зарегистрированные проверки.
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
}

// NewHandler создаёт обработчик для указанной версии сборки.
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// run выполняет проверки параллельно и возвращает их результаты с общим статусом.
func (h *Handler) run() (map[string]Check, Status) {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		checks  = make(map[string]Check, len(checkers))
		overall = StatusHealthy
	)
	for name, c := range checkers {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			check := c.Check()

			mu.Lock()
			defer mu.Unlock()
			checks[name] = check
			if check.Status.rank() > overall.rank() {
				overall = check.Status
			}
		}(name, c)
	}
	wg.Wait()

	return checks, overall
}

// ServeHTTP отдаёт подробный статус; degraded остаётся 200, unhealthy — 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks, overall := h.run()

	status := http.StatusOK
	if overall == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Service:       version.Service,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// LivenessHandler всегда отвечает 200: процесс жив.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока хотя бы одна проверка unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, overall := h.run(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// SimpleChecker превращает функцию в проверку: ошибка означает unhealthy.
type SimpleChecker struct {
	name    string
	checkFn func() error
}

// NewSimpleChecker создаёт проверку из функции.
func NewSimpleChecker(name string, checkFn func() error) *SimpleChecker {
	return &SimpleChecker{name: name, checkFn: checkFn}
}

func (c *SimpleChecker) Check() Check {
	start := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.checkFn(); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}
