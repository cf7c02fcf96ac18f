// Package app собирает терминал синхронизации из компонентов и управляет
// его жизненным циклом: HTTP-сервер метрик и health-проверок, фоновая
// сверка журнала и корректная остановка.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/health"
	"github.com/2jz-code/pos-sync/internal/version"
)

// Run запускает терминал и блокируется до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	healthHandler := deps.HealthHandler(version.GetVersion())
	srv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// Стартовая сверка: записи, накопленные до перезапуска процесса,
	// не должны ждать следующего перехода связности.
	go func() {
		report, err := deps.Reconciler.Flush(ctx)
		if err != nil {
			logger.WithError(err).Warn("startup reconciliation failed")
			return
		}
		if report.Attempted > 0 {
			logger.WithFields(log.Fields{
				"attempted": report.Attempted,
				"synced":    report.Synced,
				"conflicts": report.Conflicts,
				"failed":    report.Failed,
			}).Info("startup reconciliation finished")
		}
	}()

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем терминал")
	shutdownHTTP(srv, logger)
	return ctx.Err()
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
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

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
