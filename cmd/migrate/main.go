// Команда migrate применяет и откатывает схему PostgreSQL-хранилища PDV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

var _ migrator = (*postgres.Store)(nil)

type migrateConfig struct {
	direction string
	steps     int
	dsn       string
}

type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
}

func main() {
	cfg, err := readConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		log.WithError(err).Fatal("open postgres store")
	}
	defer store.Close()

	if err := run(ctx, store, cfg, os.Stdout); err != nil {
		log.WithError(err).Error("migration failed")
		_ = store.Close()
		os.Exit(1)
	}
}

func readConfig(fs *flag.FlagSet, args []string) (migrateConfig, error) {
	var cfg migrateConfig
	fs.StringVar(&cfg.direction, "direction", "up", "migration direction: up|down|status")
	fs.IntVar(&cfg.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: PDV_DATABASE_URL)")
	if err := fs.Parse(args); err != nil {
		return migrateConfig{}, err
	}

	cfg.direction = strings.ToLower(strings.TrimSpace(cfg.direction))
	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("PDV_DATABASE_URL"))
	}
	if cfg.dsn == "" {
		return migrateConfig{}, errors.New("PDV_DATABASE_URL (or -dsn) is required")
	}
	switch cfg.direction {
	case "up", "down", "status":
	default:
		return migrateConfig{}, fmt.Errorf("unsupported direction: %s (use up|down|status)", cfg.direction)
	}
	if cfg.steps < 0 {
		return migrateConfig{}, fmt.Errorf("steps must be non-negative, got %d", cfg.steps)
	}
	return cfg, nil
}

func run(ctx context.Context, m migrator, cfg migrateConfig, out io.Writer) error {
	switch cfg.direction {
	case "up":
		if err := m.MigrateUp(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.MigrateDown(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	version, count, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", cfg.direction, version, count)
	return nil
}
