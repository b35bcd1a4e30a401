package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/app"
	"github.com/vladislavdragonenkov/pdv/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(cfg app.Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(level)
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, relying on environment")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("не удалось прочитать конфигурацию")
	}
	if err := setupLogger(cfg); err != nil {
		log.WithError(err).Warnf("неизвестный уровень логирования %q, используем info", cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"backend":      cfg.Backend,
	}).Info("запускаем PDV service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("PDV service остановлен")
}
