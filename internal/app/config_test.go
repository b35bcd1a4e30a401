package app

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected HTTPAddr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("expected Backend %s, got %s", BackendMemory, cfg.Backend)
	}
	if cfg.SellerExcludeRole != "driver" {
		t.Errorf("expected SellerExcludeRole driver, got %s", cfg.SellerExcludeRole)
	}
	if cfg.OutboxPollInterval <= 0 || cfg.OutboxBatchSize <= 0 || cfg.OutboxMaxAttempts <= 0 {
		t.Errorf("outbox settings must be positive: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("PDV_HTTP_ADDR", "127.0.0.1:18080")
	t.Setenv("PDV_BACKEND", BackendHTTP)
	t.Setenv("PDV_BACKOFFICE_URL", "https://backoffice.example.com/api")
	t.Setenv("PDV_BACKOFFICE_TIMEOUT", "3s")
	t.Setenv("PDV_BREAKER_FAILURES", "7")
	t.Setenv("PDV_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PDV_OUTBOX_BATCH_SIZE", "25")
	t.Setenv("PDV_SESSION_IDLE_TTL", "30m")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() returned unexpected error: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:18080" {
		t.Fatalf("unexpected HTTPAddr %q", cfg.HTTPAddr)
	}
	if cfg.Backend != BackendHTTP || cfg.BackofficeURL != "https://backoffice.example.com/api" {
		t.Fatalf("unexpected backend settings: %s %s", cfg.Backend, cfg.BackofficeURL)
	}
	if cfg.BackofficeTimeout != 3*time.Second {
		t.Fatalf("expected timeout 3s, got %v", cfg.BackofficeTimeout)
	}
	if cfg.BreakerFailures != 7 {
		t.Fatalf("expected 7 breaker failures, got %d", cfg.BreakerFailures)
	}
	if cfg.OutboxBatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.OutboxBatchSize)
	}
	if cfg.SessionIdleTTL != 30*time.Minute || cfg.SessionSweepInterval != 5*time.Minute {
		t.Fatalf("unexpected session eviction settings: %s %s", cfg.SessionIdleTTL, cfg.SessionSweepInterval)
	}
	if got := cfg.Brokers(); len(got) != 2 || got[0] != "k1:9092" || got[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	// Незаданные ключи получают значения по умолчанию
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("expected default MetricsAddr, got %q", cfg.MetricsAddr)
	}
	if cfg.ReadRetries != 3 {
		t.Fatalf("expected default ReadRetries 3, got %d", cfg.ReadRetries)
	}
	if cfg.Storage != StorageMemory || !cfg.DatabaseAutoMigrate {
		t.Fatalf("unexpected storage defaults: %s %v", cfg.Storage, cfg.DatabaseAutoMigrate)
	}
	if cfg.IdempotencyTTL != 24*time.Hour || cfg.IdempotencyCleanupBatch != 500 {
		t.Fatalf("unexpected idempotency defaults: %s %d", cfg.IdempotencyTTL, cfg.IdempotencyCleanupBatch)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	t.Setenv("PDV_BREAKER_RESET", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "http backend without url",
			mutate: func(c *Config) { c.Backend = BackendHTTP },
			errMsg: "PDV_BACKOFFICE_URL is required",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Backend = "postgres" },
			errMsg: "unsupported backend",
		},
		{
			name:   "zero batch size",
			mutate: func(c *Config) { c.OutboxBatchSize = 0 },
			errMsg: "PDV_OUTBOX_BATCH_SIZE",
		},
		{
			name:   "zero poll interval",
			mutate: func(c *Config) { c.OutboxPollInterval = 0 },
			errMsg: "PDV_OUTBOX_POLL_INTERVAL",
		},
		{
			name:   "postgres without url",
			mutate: func(c *Config) { c.Storage = StoragePostgres },
			errMsg: "PDV_DATABASE_URL is required",
		},
		{
			name:   "unknown storage",
			mutate: func(c *Config) { c.Storage = "sqlite" },
			errMsg: "unsupported storage",
		},
		{
			name:   "zero idempotency ttl",
			mutate: func(c *Config) { c.IdempotencyTTL = 0 },
			errMsg: "PDV_IDEMPOTENCY_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Fatalf("expected error containing %q, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestConfig_BrokersEmpty(t *testing.T) {
	cfg := DefaultConfig()
	if brokers := cfg.Brokers(); len(brokers) != 0 {
		t.Fatalf("expected no brokers, got %v", brokers)
	}

	cfg.KafkaBrokers = " , "
	if brokers := cfg.Brokers(); len(brokers) != 0 {
		t.Fatalf("expected blanks to be skipped, got %v", brokers)
	}
}
