package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/pdv/internal/health"
)

// opsRouter — служебные эндпоинты: метрики Prometheus и проверки здоровья.
func opsRouter(health *healthcheck.Handler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Method(http.MethodGet, "/healthz", health)
	r.Get("/livez", healthcheck.LivenessHandler)
	r.Get("/readyz", health.ReadinessHandler)
	return r
}

// startOpsServer поднимает служебный сервер на addr и гасит его при отмене ctx.
func startOpsServer(ctx context.Context, addr string, logger *log.Entry, health *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: opsRouter(health), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.WithField("addr", addr).Info("служебный сервер: /metrics /healthz /livez /readyz")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
