// Package gateway — единая точка входа для операций корзины и чекаута.
// Шлюз владеет идентичностью активного заказа и очередью отложенных
// операций и решает, идёт ли мутация в live-канал или в локальный журнал.
package gateway

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/channel"
	"github.com/2jz-code/pos-sync/internal/connectivity"
	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/metrics"
	"github.com/2jz-code/pos-sync/internal/reconcile"
)

const defaultBatchWindow = 100 * time.Millisecond

// LiveSender — минимальный контракт live-канала, нужный шлюзу.
type LiveSender interface {
	Connect(identity domain.OrderIdentity) error
	Send(msg channel.OutboundMessage) error
	Disconnect()
}

// Flusher запускает сверку локального журнала с сервером.
type Flusher interface {
	Flush(ctx context.Context) (reconcile.Report, error)
}

// RemoteCreateFunc создаёт заказ на сервере и возвращает серверную идентичность.
type RemoteCreateFunc func(ctx context.Context, draft domain.OrderDraft) (domain.OrderIdentity, error)

// OnlineCheckoutFunc выполняет live-чекаут; передаётся вызывающей стороной.
type OnlineCheckoutFunc func(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)

// Options задаёт параметры шлюза.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.SyncMetrics
	Events      domain.SyncEventPublisher
	Flusher     Flusher
	BatchWindow time.Duration
}

// Option настраивает Gateway.
type Option func(*Options)

// WithLogger задаёт logger шлюза.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики чекаутов и батчей.
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

// WithFlusher подключает сверку, запускаемую при возврате связности.
func WithFlusher(flusher Flusher) Option {
	return func(opts *Options) {
		opts.Flusher = flusher
	}
}

// WithBatchWindow задаёт окно коалесценции батча операций.
func WithBatchWindow(window time.Duration) Option {
	return func(opts *Options) {
		opts.BatchWindow = window
	}
}

// Gateway маршрутизирует мутации активного заказа. Идентичность и очередь
// принадлежат исключительно шлюзу и меняются только через его методы.
type Gateway struct {
	conn    *connectivity.Monitor
	live    LiveSender
	store   domain.OfflineOrderRepository
	logger  *log.Entry
	metrics *metrics.SyncMetrics
	events  domain.SyncEventPublisher
	flusher Flusher

	batchWindow time.Duration

	mu         sync.Mutex
	identity   domain.OrderIdentity
	queue      []domain.Operation
	flushTimer *time.Timer
	offline    bool
	closed     bool

	stop     chan struct{}
	watchers sync.WaitGroup
}

// New создаёт шлюз с внедрёнными зависимостями и запускает наблюдение
// за переходами связности.
func New(conn *connectivity.Monitor, live LiveSender, store domain.OfflineOrderRepository, options ...Option) *Gateway {
	opts := Options{BatchWindow: defaultBatchWindow}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "order-gateway")
	}

	g := &Gateway{
		conn:        conn,
		live:        live,
		store:       store,
		logger:      logger,
		metrics:     opts.Metrics,
		events:      opts.Events,
		flusher:     opts.Flusher,
		batchWindow: opts.BatchWindow,
		offline:     conn != nil && !conn.Online(),
		stop:        make(chan struct{}),
	}

	if conn != nil {
		g.watchers.Add(1)
		go g.watchConnectivity(conn.Subscribe())
	}
	return g
}

// Close останавливает шлюз: наблюдатель связности и отложенный батч-таймер.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	if g.flushTimer != nil {
		g.flushTimer.Stop()
		g.flushTimer = nil
	}
	close(g.stop)
	g.mu.Unlock()

	g.watchers.Wait()
}

// Identity возвращает текущую идентичность активного заказа.
func (g *Gateway) Identity() domain.OrderIdentity {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity
}

// Reset очищает идентичность и очередь для следующего заказа.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identity = domain.OrderIdentity{}
	g.queue = nil
	if g.flushTimer != nil {
		g.flushTimer.Stop()
		g.flushTimer = nil
	}
}

// EnsureIdentity возвращает существующую идентичность заказа или назначает
// новую. Создание заказа никогда не блокируется: при недоступности сервера
// синтезируется локальная идентичность, а шлюз переходит в офлайн-режим.
func (g *Gateway) EnsureIdentity(ctx context.Context, draft domain.OrderDraft, createRemote RemoteCreateFunc) (domain.OrderIdentity, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return domain.OrderIdentity{}, domain.ErrGatewayClosed
	}
	if !g.identity.IsZero() {
		identity := g.identity
		g.mu.Unlock()
		return identity, nil
	}
	offline := g.offline || !g.conn.Online() || createRemote == nil
	if offline {
		g.identity = domain.NewLocalIdentity()
		identity := g.identity
		g.mu.Unlock()
		g.logger.WithField("local_id", identity.Value).Info("order created with local identity")
		return identity, nil
	}
	g.mu.Unlock()

	// Сетевой вызов выполняется без мьютекса.
	identity, err := createRemote(ctx, draft)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.identity.IsZero() {
		// Идентичность назначили, пока шёл сетевой вызов.
		return g.identity, nil
	}
	if err != nil || !identity.IsServer() {
		// Fail-safe: создание заказа не блокируем, падаем в офлайн-режим.
		g.logger.WithError(err).Warn("remote order creation failed, falling back to local identity")
		g.offline = true
		g.identity = domain.NewLocalIdentity()
		return g.identity, nil
	}

	g.identity = identity
	if g.live != nil {
		if connErr := g.live.Connect(identity); connErr != nil {
			g.logger.WithError(connErr).Warn("live channel connect failed")
		}
	}
	return identity, nil
}

// EnqueueOperation ставит операцию в очередь батча или отправляет сразу.
// В офлайн-режиме операции отбрасываются: под локальной идентичностью
// мутации применяются к локальному состоянию и сверяются единым слепком
// заказа, а не по одной.
func (g *Gateway) EnqueueOperation(op domain.Operation, immediate bool) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return domain.ErrGatewayClosed
	}
	if g.offline || !g.conn.Online() || g.identity.IsLocal() {
		g.mu.Unlock()
		g.logger.WithField("op", op.Type).Debug("offline, operation not queued")
		return nil
	}

	if immediate {
		g.mu.Unlock()
		return g.live.Send(operationMessage(op))
	}

	g.queue = append(g.queue, op)
	if g.flushTimer == nil {
		// Один таймер на окно; повторные операции не переармируют его,
		// чтобы всплеск правок ушёл одним батчем.
		g.flushTimer = time.AfterFunc(g.batchWindow, g.flushBatch)
	}
	g.mu.Unlock()
	return nil
}

// flushBatch отправляет накопленную очередь одним сообщением и очищает её.
func (g *Gateway) flushBatch() {
	g.mu.Lock()
	g.flushTimer = nil
	if g.closed || len(g.queue) == 0 {
		g.mu.Unlock()
		return
	}
	if g.offline || !g.conn.Online() {
		// Связность пропала до отправки: очередь не имеет смысла,
		// заказ сверится единым слепком.
		g.queue = nil
		g.mu.Unlock()
		return
	}
	batch := g.queue
	g.queue = nil
	g.mu.Unlock()

	msg := channel.OutboundMessage{
		Type:   "operation_batch",
		Fields: map[string]any{"operations": batch},
	}
	if err := g.live.Send(msg); err != nil {
		g.logger.WithError(err).Warn("batch send failed")
		return
	}
	if g.metrics != nil {
		g.metrics.RecordBatchSize(len(batch))
	}
	g.logger.WithField("size", len(batch)).Debug("operation batch transmitted")
}

func operationMessage(op domain.Operation) channel.OutboundMessage {
	fields := make(map[string]any, len(op.Payload))
	for k, v := range op.Payload {
		fields[k] = v
	}
	return channel.OutboundMessage{Type: string(op.Type), Fields: fields}
}

// watchConnectivity реагирует на переходы связности: уход в офлайн гасит
// live-канал, возврат связности запускает фоновую сверку журнала.
func (g *Gateway) watchConnectivity(transitions <-chan bool) {
	defer g.watchers.Done()
	for {
		select {
		case <-g.stop:
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			g.mu.Lock()
			g.offline = !online
			g.mu.Unlock()

			if !online {
				if g.live != nil {
					g.live.Disconnect()
				}
				continue
			}
			if g.flusher != nil {
				go func() {
					// Сверка по возврату связности — best effort.
					report, err := g.flusher.Flush(context.Background())
					if err != nil {
						g.logger.WithError(err).Warn("reconciliation after reconnect failed")
						return
					}
					g.logger.WithFields(log.Fields{
						"attempted": report.Attempted,
						"synced":    report.Synced,
						"conflicts": report.Conflicts,
						"failed":    report.Failed,
					}).Info("reconciliation after reconnect finished")
				}()
			}
		}
	}
}

// publishEvent публикует событие синхронизации; сбой публикации только логируется.
func (g *Gateway) publishEvent(eventType domain.SyncEventType, localID string, metadata map[string]any) {
	if g.events == nil {
		return
	}
	event := domain.SyncEvent{
		Type:      eventType,
		LocalID:   localID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := g.events.Publish(event); err != nil {
		g.logger.WithError(err).WithField("event", eventType).Warn("failed to publish sync event")
	}
}
