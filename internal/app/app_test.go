package app

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.OutboxPollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "invalid-backend"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported backend") {
		t.Fatalf("expected unsupported backend error, got %v", err)
	}
}

func TestRun_HTTPAddrInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	cfg := DefaultConfig()
	cfg.HTTPAddr = listener.Addr().String()
	cfg.MetricsAddr = "127.0.0.1:0"

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected listen error for busy address")
	}
}
