package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/pdv/internal/health"
	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pdv/internal/service/cart"
	"github.com/vladislavdragonenkov/pdv/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pdv/internal/service/outbox"
	"github.com/vladislavdragonenkov/pdv/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/pdv/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает HTTP API корзины, сервер метрик и outbox worker; блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	kafkaProducer := connectKafka(cfg, logger)

	orchestrator := newOrchestrator(deps)
	api := httpapi.NewHandler(deps.Store, orchestrator, logger.WithField("component", "http-api"),
		httpapi.WithIdempotency(deps.IdempotencyRepo, cfg.IdempotencyTTL, deps.IdempotencyMetrics),
	)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	registerHealthCheckers(healthHandler, deps, cfg)
	metricsSrv := startOpsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := startOutboxWorker(workerCtx, cfg, deps, kafkaProducer)
	cleanupDone := startIdempotencyCleanup(workerCtx, cfg, deps)
	evictionDone := startSessionEviction(workerCtx, cfg, deps)

	stopBackground := func() {
		stopWorker()
		<-workerDone
		<-cleanupDone
		<-evictionDone
		shutdownHTTP(metricsSrv, logger)
		closeKafka(kafkaProducer, logger)
		deps.Close()
	}

	lis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		stopBackground()
		return err
	}

	apiSrv := &http.Server{Handler: api.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", lis.Addr())
		errCh <- apiSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		stopBackground()
		return ctx.Err()
	case err := <-errCh:
		stopBackground()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// registerHealthCheckers подключает проверки компонентов к /healthz и /readyz.
func registerHealthCheckers(h *healthcheck.Handler, deps *Dependencies, cfg Config) {
	h.RegisterChecker("outbox", healthcheck.NewOutboxChecker("outbox", deps.OutboxRepo, cfg.OutboxMaxPending))
	if deps.Breaker != nil {
		h.RegisterChecker("backoffice", healthcheck.NewBreakerChecker("backoffice", deps.Breaker))
	}
	if store := deps.Postgres; store != nil {
		h.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return store.Ping(context.Background())
		}))
	}
}

// startOutboxWorker запускает публикацию outbox; канал закрывается после остановки воркера.
func startOutboxWorker(ctx context.Context, cfg Config, deps *Dependencies, producer *kafka.Producer) <-chan struct{} {
	workerLogger := deps.Logger.WithField("component", "outbox-worker")

	publisher := newLogPublisher(workerLogger)
	opts := []outbox.Option{
		outbox.WithLogger(workerLogger),
		outbox.WithMetrics(deps.OutboxMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	}
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
		opts = append(opts, outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer, cfg.KafkaTopic, cfg.OutboxMaxAttempts)))
	}

	worker := outbox.NewWorker(deps.OutboxRepo, publisher, opts...)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// startIdempotencyCleanup периодически удаляет просроченные ключи идемпотентности.
func startIdempotencyCleanup(ctx context.Context, cfg Config, deps *Dependencies) <-chan struct{} {
	worker := idempotency.NewCleanupWorker(deps.IdempotencyRepo,
		idempotency.WithLogger(deps.Logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(deps.IdempotencyMetrics),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatch),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// startSessionEviction закрывает сессии корзины, простаивающие дольше PDV_SESSION_IDLE_TTL.
func startSessionEviction(ctx context.Context, cfg Config, deps *Dependencies) <-chan struct{} {
	worker := cart.NewEvictionWorker(deps.Store,
		cart.WithEvictionLogger(deps.Logger.WithField("component", "session-eviction")),
		cart.WithEvictionMetrics(deps.Metrics),
		cart.WithEvictionInterval(cfg.SessionSweepInterval),
		cart.WithIdleTTL(cfg.SessionIdleTTL),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}
