package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/client/backoffice"
	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/service/cart"
	"github.com/vladislavdragonenkov/pdv/internal/service/saga"
	"github.com/vladislavdragonenkov/pdv/internal/service/seats"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
	"github.com/vladislavdragonenkov/pdv/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Backoffice    domain.Backoffice
	Store         *cart.Store
	OutboxRepo    domain.OutboxRepository
	TimelineRepo  domain.TimelineRepository
	Metrics       *metrics.SubmissionMetrics
	OutboxMetrics *metrics.OutboxMetrics

	IdempotencyRepo    domain.IdempotencyRepository
	IdempotencyMetrics *metrics.IdempotencyMetrics

	// Postgres задан только для хранилища postgres.
	Postgres *postgres.Store
	// Breaker задан только для HTTP-бэкенда.
	Breaker *backoffice.CircuitBreaker
	Logger  *log.Entry
}

// NewDependencies создаёт и инициализирует зависимости по конфигурации.
// Бэкенд memory заполняется демо-данными; http ходит во внешний back-office API.
// Хранилище postgres открывается сразу и при необходимости мигрируется.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{
		Metrics:            metrics.NewSubmissionMetrics(),
		OutboxMetrics:      metrics.NewOutboxMetrics(),
		IdempotencyMetrics: metrics.NewIdempotencyMetrics(),
		Logger:             logger,
	}

	if err := initStorage(ctx, cfg, deps); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendMemory, "":
		b := memory.NewBackoffice()
		memory.SeedDemo(b)
		deps.Backoffice = b
		logger.WithField("company_id", memory.DemoCompanyID).Info("using in-memory back-office with demo data")
	case BackendHTTP:
		client, err := newBackofficeClient(cfg, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Backoffice = client
		deps.Breaker = client.Breaker()
	default:
		deps.Close()
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}

	deps.Store = cart.NewStore(cart.Config{
		Directories:       deps.Backoffice,
		Allocator:         seats.NewAllocator(),
		Logger:            logger.WithField("component", "cart-session"),
		SellerExcludeRole: cfg.SellerExcludeRole,
	})
	return deps, nil
}

// Close освобождает подключение к базе, если оно открыто.
func (d *Dependencies) Close() {
	if d == nil || d.Postgres == nil {
		return
	}
	if err := d.Postgres.Close(); err != nil {
		d.Logger.WithError(err).Warn("failed to close postgres store")
	}
	d.Postgres = nil
}

func initStorage(ctx context.Context, cfg Config, deps *Dependencies) error {
	switch cfg.Storage {
	case StorageMemory, "":
		deps.OutboxRepo = memory.NewOutboxRepository()
		deps.TimelineRepo = memory.NewTimelineRepository()
		deps.IdempotencyRepo = memory.NewIdempotencyRepository()
		return nil
	case StoragePostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if cfg.DatabaseAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.Postgres = store
		deps.OutboxRepo = postgres.NewOutboxRepository(store)
		deps.TimelineRepo = postgres.NewTimelineRepository(store)
		deps.IdempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.Logger.Info("using postgres storage")
		return nil
	default:
		return fmt.Errorf("unsupported storage %q", cfg.Storage)
	}
}

func newBackofficeClient(cfg Config, logger *log.Entry) (*backoffice.Client, error) {
	clientLogger := logger.WithField("component", "backoffice-client")

	retry := backoffice.DefaultRetryConfig()
	if cfg.ReadRetries > 0 {
		retry.MaxAttempts = cfg.ReadRetries
	}

	client, err := backoffice.NewClient(
		cfg.BackofficeURL,
		backoffice.WithToken(cfg.BackofficeToken),
		backoffice.WithTimeout(cfg.BackofficeTimeout),
		backoffice.WithRetryConfig(retry),
		backoffice.WithCircuitBreaker(backoffice.NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset, clientLogger)),
		backoffice.WithLogger(clientLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("create backoffice client: %w", err)
	}
	return client, nil
}

// newOrchestrator создаёт оркестратор оформления. События попадают в Kafka только через outbox.
func newOrchestrator(deps *Dependencies) *saga.Orchestrator {
	return saga.NewOrchestrator(
		deps.Backoffice,
		deps.OutboxRepo,
		deps.TimelineRepo,
		deps.Logger.WithField("component", "saga"),
		saga.WithMetrics(deps.Metrics),
	)
}
