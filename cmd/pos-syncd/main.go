package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/app"
	"github.com/2jz-code/pos-sync/internal/version"
)

// setupLogger настраивает формат и уровень логирования для терминала.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if v := os.Getenv("POS_LOG_LEVEL"); v != "" {
		if level, err := log.ParseLevel(v); err == nil {
			log.SetLevel(level)
		}
	}
}

func main() {
	setupLogger()

	cfg, err := app.ReadConfig()
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"device_id":    cfg.DeviceID,
		"metrics_addr": cfg.MetricsAddr,
		"ledger_path":  cfg.LedgerPath,
		"version":      version.String(),
	}).Info("запускаем терминал синхронизации")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("терминал завершился с ошибкой")
	}

	log.Info("терминал остановлен")
}
