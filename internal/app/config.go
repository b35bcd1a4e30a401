package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Поддерживаемые бэкенды внешних справочников и сервиса продаж.
const (
	BackendMemory = "memory"
	BackendHTTP   = "http"
)

// Хранилища outbox, журнала оформления и ключей идемпотентности.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string `envconfig:"PDV_HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"PDV_METRICS_ADDR" default:":9090"`
	LogLevel    string `envconfig:"PDV_LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"PDV_LOG_FORMAT" default:"text"`

	Backend           string        `envconfig:"PDV_BACKEND" default:"memory"`
	BackofficeURL     string        `envconfig:"PDV_BACKOFFICE_URL"`
	BackofficeToken   string        `envconfig:"PDV_BACKOFFICE_TOKEN"`
	BackofficeTimeout time.Duration `envconfig:"PDV_BACKOFFICE_TIMEOUT" default:"10s"`
	ReadRetries       int           `envconfig:"PDV_READ_RETRIES" default:"3"`
	BreakerFailures   int           `envconfig:"PDV_BREAKER_FAILURES" default:"5"`
	BreakerReset      time.Duration `envconfig:"PDV_BREAKER_RESET" default:"30s"`
	SellerExcludeRole string        `envconfig:"PDV_SELLER_EXCLUDE_ROLE" default:"driver"`

	SessionIdleTTL       time.Duration `envconfig:"PDV_SESSION_IDLE_TTL" default:"12h"`
	SessionSweepInterval time.Duration `envconfig:"PDV_SESSION_SWEEP_INTERVAL" default:"5m"`

	Storage             string `envconfig:"PDV_STORAGE" default:"memory"`
	DatabaseURL         string `envconfig:"PDV_DATABASE_URL"`
	DatabaseAutoMigrate bool   `envconfig:"PDV_DATABASE_AUTO_MIGRATE" default:"true"`

	KafkaBrokers       string        `envconfig:"PDV_KAFKA_BROKERS"`
	KafkaTopic         string        `envconfig:"PDV_KAFKA_TOPIC"`
	OutboxPollInterval time.Duration `envconfig:"PDV_OUTBOX_POLL_INTERVAL" default:"1s"`
	OutboxBatchSize    int           `envconfig:"PDV_OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxAttempts  int           `envconfig:"PDV_OUTBOX_MAX_ATTEMPTS" default:"3"`
	OutboxMaxPending   int           `envconfig:"PDV_OUTBOX_MAX_PENDING" default:"1000"`

	IdempotencyTTL             time.Duration `envconfig:"PDV_IDEMPOTENCY_TTL" default:"24h"`
	IdempotencyCleanupInterval time.Duration `envconfig:"PDV_IDEMPOTENCY_CLEANUP_INTERVAL" default:"10m"`
	IdempotencyCleanupBatch    int           `envconfig:"PDV_IDEMPOTENCY_CLEANUP_BATCH" default:"500"`
}

// DefaultConfig возвращает конфигурацию для локального запуска на демо-данных.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		LogLevel:           "info",
		LogFormat:          "text",
		Backend:            BackendMemory,
		BackofficeTimeout:  10 * time.Second,
		ReadRetries:        3,
		BreakerFailures:    5,
		BreakerReset:       30 * time.Second,
		SellerExcludeRole:  "driver",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxMaxPending:   1000,

		Storage:             StorageMemory,
		DatabaseAutoMigrate: true,

		SessionIdleTTL:       12 * time.Hour,
		SessionSweepInterval: 5 * time.Minute,

		IdempotencyTTL:             24 * time.Hour,
		IdempotencyCleanupInterval: 10 * time.Minute,
		IdempotencyCleanupBatch:    500,
	}
}

// LoadConfig читает конфигурацию из переменных окружения PDV_*.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendHTTP:
		if strings.TrimSpace(c.BackofficeURL) == "" {
			return fmt.Errorf("PDV_BACKOFFICE_URL is required for backend %q", BackendHTTP)
		}
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("PDV_DATABASE_URL is required for storage %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("unsupported storage %q", c.Storage)
	}
	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("PDV_OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("PDV_OUTBOX_POLL_INTERVAL must be positive, got %s", c.OutboxPollInterval)
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("PDV_IDEMPOTENCY_TTL must be positive, got %s", c.IdempotencyTTL)
	}
	return nil
}

// Brokers разбирает список Kafka brokers через запятую.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
