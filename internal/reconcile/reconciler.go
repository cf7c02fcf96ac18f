// Package reconcile сверяет локальный журнал офлайн-заказов с сервером:
// pending-записи последовательно отправляются через идемпотентный ingest,
// и каждая получает терминальный статус по ответу сервера.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/connectivity"
	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/metrics"
)

// Report — сводка одного прогона сверки.
type Report struct {
	Attempted int
	Synced    int
	Conflicts int
	Failed    int
}

// VersionsFunc возвращает текущий вектор версий справочных данных.
type VersionsFunc func() domain.DatasetVersions

// Options задаёт параметры сверки.
type Options struct {
	Logger   *log.Entry
	Metrics  *metrics.SyncMetrics
	Events   domain.SyncEventPublisher
	Versions VersionsFunc
}

// Option настраивает Reconciler.
type Option func(*Options)

// WithLogger задаёт logger сверки.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики прогонов сверки.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithEventPublisher подключает публикацию событий синхронизации.
func WithEventPublisher(events domain.SyncEventPublisher) Option {
	return func(opts *Options) {
		opts.Events = events
	}
}

// WithVersions задаёт источник текущего вектора версий справочников.
func WithVersions(versions VersionsFunc) Option {
	return func(opts *Options) {
		opts.Versions = versions
	}
}

// Reconciler выполняет прогон сверки. Одновременно идёт не больше одного
// прогона: параллельные вызовы Flush игнорируются, чтобы одна и та же
// запись не ушла на сервер дважды.
type Reconciler struct {
	store    domain.OfflineOrderRepository
	client   domain.IngestClient
	conn     *connectivity.Monitor
	deviceID string
	versions VersionsFunc
	logger   *log.Entry
	metrics  *metrics.SyncMetrics
	events   domain.SyncEventPublisher

	flightMu sync.Mutex
}

// New создаёт Reconciler с внедрёнными зависимостями.
func New(store domain.OfflineOrderRepository, client domain.IngestClient, conn *connectivity.Monitor, deviceID string, options ...Option) *Reconciler {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "sync-reconciler")
	}
	versions := opts.Versions
	if versions == nil {
		versions = func() domain.DatasetVersions { return nil }
	}

	return &Reconciler{
		store:    store,
		client:   client,
		conn:     conn,
		deviceID: deviceID,
		versions: versions,
		logger:   logger,
		metrics:  opts.Metrics,
		events:   opts.Events,
	}
}

// Flush последовательно отправляет pending-записи журнала. No-op при
// отсутствии связности и при уже идущем прогоне. Уход в офлайн посреди
// прогона останавливает выборку перед следующей записью, но не отменяет
// уже отправленный запрос — его результат всё равно применяется.
func (r *Reconciler) Flush(ctx context.Context) (Report, error) {
	if r.conn != nil && !r.conn.Online() {
		r.logger.Debug("offline, flush skipped")
		return Report{}, nil
	}
	if !r.flightMu.TryLock() {
		r.logger.Debug("flush already in flight, skipped")
		return Report{}, nil
	}
	defer r.flightMu.Unlock()

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordFlushDuration(time.Since(start))
		}
	}()

	records, err := r.store.ListByStatus(domain.SyncStatusPending)
	if err != nil {
		return Report{}, fmt.Errorf("list pending records: %w", err)
	}

	var report Report
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		if r.conn != nil && !r.conn.Online() {
			r.logger.Info("went offline mid-flush, stopping before next record")
			break
		}

		report.Attempted++
		r.flushRecord(ctx, record, &report)
	}

	r.updatePendingGauge()

	r.logger.WithFields(log.Fields{
		"attempted": report.Attempted,
		"synced":    report.Synced,
		"conflicts": report.Conflicts,
		"failed":    report.Failed,
	}).Info("flush finished")
	return report, nil
}

func (r *Reconciler) flushRecord(ctx context.Context, record domain.OfflineOrderRecord, report *Report) {
	recordLogger := r.logger.WithField("local_id", record.LocalID)

	payload := BuildPayload(record, r.deviceID, r.versions(), time.Now().UTC())
	response, err := r.client.Submit(ctx, payload)
	if err != nil {
		// Временный сбой: запись остаётся pending до следующего прогона.
		recordLogger.WithError(err).Warn("ingest submit failed, record left pending")
		report.Failed++
		r.recordResult("failed")
		return
	}

	switch response.Status {
	case domain.IngestStatusSuccess:
		if err := r.store.MarkSynced(record.LocalID, response.OrderID, response.OrderNumber); err != nil {
			recordLogger.WithError(err).Error("failed to mark record synced")
			report.Failed++
			r.recordResult("failed")
			return
		}
		recordLogger.WithFields(log.Fields{
			"order_id":     response.OrderID,
			"order_number": response.OrderNumber,
		}).Info("offline order synced")
		report.Synced++
		r.recordResult("synced")
		r.publishEvent(domain.SyncEventOrderSynced, record.LocalID, response.OrderID, nil)

	case domain.IngestStatusConflict:
		reason := conflictReason(response.Conflicts)
		if err := r.store.MarkConflict(record.LocalID, reason); err != nil {
			recordLogger.WithError(err).Error("failed to mark record conflicted")
			report.Failed++
			r.recordResult("failed")
			return
		}
		recordLogger.WithField("reason", reason).Warn("offline order conflicted, manual resolution required")
		report.Conflicts++
		r.recordResult("conflict")
		r.publishEvent(domain.SyncEventOrderConflict, record.LocalID, "", map[string]any{
			"reason": reason,
		})

	default:
		recordLogger.WithField("status", response.Status).Warn("unknown ingest status, record left pending")
		report.Failed++
		r.recordResult("failed")
	}
}

// conflictReason собирает человекочитаемую причину из конфликтов сервера.
func conflictReason(conflicts []domain.IngestConflict) string {
	if len(conflicts) == 0 {
		return "server reported a conflict without details"
	}
	parts := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		part := c.Message
		if c.Dataset != "" {
			part = c.Dataset + ": " + part
		}
		if c.ItemID != "" {
			part += " (item " + c.ItemID + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func (r *Reconciler) recordResult(result string) {
	if r.metrics != nil {
		r.metrics.RecordFlushResult(result)
	}
}

func (r *Reconciler) updatePendingGauge() {
	if r.metrics == nil {
		return
	}
	if n, err := r.store.CountByStatus(domain.SyncStatusPending); err == nil {
		r.metrics.SetPendingRecords(n)
	}
}

func (r *Reconciler) publishEvent(eventType domain.SyncEventType, localID, orderID string, metadata map[string]any) {
	if r.events == nil {
		return
	}
	event := domain.SyncEvent{
		Type:      eventType,
		LocalID:   localID,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := r.events.Publish(event); err != nil {
		r.logger.WithError(err).WithField("event", eventType).Warn("failed to publish sync event")
	}
}
