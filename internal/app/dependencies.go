package app

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/channel"
	"github.com/2jz-code/pos-sync/internal/connectivity"
	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/gateway"
	"github.com/2jz-code/pos-sync/internal/health"
	"github.com/2jz-code/pos-sync/internal/ingest"
	"github.com/2jz-code/pos-sync/internal/messaging/kafka"
	"github.com/2jz-code/pos-sync/internal/metrics"
	"github.com/2jz-code/pos-sync/internal/reconcile"
	"github.com/2jz-code/pos-sync/internal/storage/memory"
	"github.com/2jz-code/pos-sync/internal/storage/sqlite"
)

// Dependencies содержит все зависимости терминала синхронизации.
type Dependencies struct {
	Monitor    *connectivity.Monitor
	Store      domain.OfflineOrderRepository
	Ledger     *sqlite.Store
	Metrics    *metrics.SyncMetrics
	Channel    *channel.LiveChannel
	Reconciler *reconcile.Reconciler
	Gateway    *gateway.Gateway
	Producer   *kafka.Producer
	Logger     *log.Entry
}

// NewDependencies создаёт и связывает все зависимости по конфигурации.
// Kafka опциональна: без брокеров события синхронизации не публикуются.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	monitor := connectivity.NewMonitor(cfg.StartOnline, logger.WithField("component", "connectivity"))
	syncMetrics := metrics.NewSyncMetrics()

	deps := &Dependencies{
		Monitor: monitor,
		Metrics: syncMetrics,
		Logger:  logger,
	}

	if cfg.LedgerPath != "" {
		ledger, err := sqlite.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("open sales ledger: %w", err)
		}
		deps.Ledger = ledger
		deps.Store = sqlite.NewOfflineOrderRepository(ledger)
		logger.WithField("path", cfg.LedgerPath).Info("durable sales ledger opened")
	} else {
		deps.Store = memory.NewOfflineOrderRepository()
		logger.Warn("POS_LEDGER_PATH is empty, using in-memory ledger: offline orders will not survive a restart")
	}

	producer, err := initKafkaProducer(cfg.KafkaBrokers, cfg.DeviceID, logger)
	if err == nil {
		deps.Producer = producer
	}

	var events domain.SyncEventPublisher
	if deps.Producer != nil {
		events = deps.Producer
	}

	ingestClient := ingest.NewClient(cfg.IngestBaseURL, cfg.IngestToken, &http.Client{})

	reconciler := reconcile.New(deps.Store, ingestClient, monitor, cfg.DeviceID,
		reconcile.WithLogger(logger.WithField("component", "sync-reconciler")),
		reconcile.WithMetrics(syncMetrics),
		reconcile.WithEventPublisher(events),
	)
	deps.Reconciler = reconciler

	dialer := &channel.WebsocketDialer{
		BaseURL:   cfg.WebsocketURL,
		Origin:    cfg.WebsocketOrigin,
		AuthToken: cfg.IngestToken,
	}
	deps.Channel = channel.New(dialer,
		channel.WithLogger(logger.WithField("component", "live-channel")),
		channel.WithMetrics(syncMetrics),
	)

	deps.Gateway = gateway.New(monitor, deps.Channel, deps.Store,
		gateway.WithLogger(logger.WithField("component", "order-gateway")),
		gateway.WithMetrics(syncMetrics),
		gateway.WithEventPublisher(events),
		gateway.WithFlusher(reconciler),
	)

	return deps, nil
}

// Close останавливает зависимости в порядке, обратном созданию.
func (d *Dependencies) Close() {
	if d.Gateway != nil {
		d.Gateway.Close()
	}
	if d.Channel != nil {
		d.Channel.Close()
	}
	if d.Producer != nil {
		if err := d.Producer.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close kafka producer")
		}
	}
	if d.Ledger != nil {
		if err := d.Ledger.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close sales ledger")
		}
	}
	if d.Monitor != nil {
		d.Monitor.Close()
	}
}

// HealthHandler собирает health-проверки терминала: журнал продаж и
// состояние синхронизации.
func (d *Dependencies) HealthHandler(version string) *health.Handler {
	handler := health.NewHandler(version)
	if d.Ledger != nil {
		handler.RegisterChecker("ledger", health.NewLedgerChecker("ledger", d.Ledger))
	}
	handler.RegisterChecker("sync", health.NewSyncChecker("sync",
		d.Monitor.Online,
		func() (int, error) {
			return d.Store.CountByStatus(domain.SyncStatusPending)
		},
	))
	return handler
}

// initKafkaProducer инициализирует Kafka producer, если брокеры заданы.
// Возвращает nil, nil при пустом списке брокеров.
func initKafkaProducer(brokers []string, deviceID string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, deviceID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}
