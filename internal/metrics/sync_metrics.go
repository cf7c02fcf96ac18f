package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики ядра синхронизации заказов.
type SyncMetrics struct {
	// Счётчики чекаутов
	offlineCheckouts  prometheus.Counter
	degradedCheckouts prometheus.Counter

	// Метрики сверки
	flushRecords  *prometheus.CounterVec
	flushDuration prometheus.Histogram
	pendingGauge  prometheus.Gauge

	// Метрики live-канала и батчинга
	reconnectAttempts prometheus.Counter
	batchSize         prometheus.Histogram
}

// NewSyncMetrics создаёт метрики в default-реестре Prometheus.
func NewSyncMetrics() *SyncMetrics {
	return newSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		offlineCheckouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_checkout_offline_total",
			Help: "Total number of checkouts settled through the offline branch",
		}),
		degradedCheckouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_checkout_degraded_total",
			Help: "Total number of live checkouts silently degraded to offline",
		}),
		flushRecords: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pos_sync_flush_records_total",
			Help: "Offline records processed by reconciliation, grouped by result",
		}, []string{"result"}),
		flushDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pos_sync_flush_duration_seconds",
			Help:    "Duration of reconciliation flush runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		pendingGauge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pos_sync_pending_records",
			Help: "Current number of pending records in the local order ledger",
		}),
		reconnectAttempts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pos_channel_reconnect_attempts_total",
			Help: "Total number of live channel reconnect attempts",
		}),
		batchSize: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "pos_gateway_batch_size",
			Help:    "Number of operations per transmitted batch",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
	}
}

// RecordOfflineCheckout увеличивает счётчик офлайн-чекаутов.
func (m *SyncMetrics) RecordOfflineCheckout() {
	m.offlineCheckouts.Inc()
}

// RecordDegradedCheckout увеличивает счётчик деградаций live-чекаута в офлайн.
func (m *SyncMetrics) RecordDegradedCheckout() {
	m.degradedCheckouts.Inc()
}

// RecordFlushResult учитывает исход обработки одной записи при сверке.
func (m *SyncMetrics) RecordFlushResult(result string) {
	m.flushRecords.WithLabelValues(result).Inc()
}

// RecordFlushDuration записывает длительность прогона сверки.
func (m *SyncMetrics) RecordFlushDuration(duration time.Duration) {
	m.flushDuration.Observe(duration.Seconds())
}

// SetPendingRecords обновляет gauge ожидающих записей журнала.
func (m *SyncMetrics) SetPendingRecords(n int) {
	m.pendingGauge.Set(float64(n))
}

// RecordReconnectAttempt увеличивает счётчик попыток переподключения канала.
func (m *SyncMetrics) RecordReconnectAttempt() {
	m.reconnectAttempts.Inc()
}

// RecordBatchSize записывает размер отправленного батча операций.
func (m *SyncMetrics) RecordBatchSize(n int) {
	m.batchSize.Observe(float64(n))
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}
