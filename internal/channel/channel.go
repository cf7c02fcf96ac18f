// Package channel реализует live-канал активного заказа: дуплексное
// соединение с сервером, переподключение с экспоненциальной задержкой и
// буферизацию исходящих сообщений на время разрыва.
package channel

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/domain"
	"github.com/2jz-code/pos-sync/internal/metrics"
)

// State описывает состояние конечного автомата канала.
type State int

const (
	// StateDisconnected — соединения нет; возможен подсостояние
	// "переподключение запланировано" (см. ReconnectScheduled).
	StateDisconnected State = iota
	// StateConnecting — попытка установить соединение выполняется.
	StateConnecting
	// StateConnected — соединение установлено, буфер сброшен.
	StateConnected
)

const (
	defaultBackoffBase = 1 * time.Second
	defaultBackoffCap  = 30 * time.Second
	defaultMaxAttempts = 5
	defaultEventBuffer = 64
)

// Conn — транспортное соединение live-канала.
type Conn interface {
	Send(msg OutboundMessage) error
	Receive() (InboundMessage, error)
	Close() error
}

// Dialer открывает соединение, привязанное к идентичности заказа.
type Dialer interface {
	Dial(ctx context.Context, identity domain.OrderIdentity) (Conn, error)
}

// Options задаёт параметры live-канала.
type Options struct {
	Logger      *log.Entry
	Metrics     *metrics.SyncMetrics
	BackoffBase time.Duration
	BackoffCap  time.Duration
	MaxAttempts int
	EventBuffer int
}

// Option настраивает LiveChannel.
type Option func(*Options)

// WithLogger задаёт logger канала.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики переподключений.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithBackoff задаёт базовую задержку и потолок экспоненциального backoff.
func WithBackoff(base, cap time.Duration) Option {
	return func(opts *Options) {
		opts.BackoffBase = base
		opts.BackoffCap = cap
	}
}

// WithMaxAttempts задаёт границу автоматических попыток переподключения.
func WithMaxAttempts(n int) Option {
	return func(opts *Options) {
		opts.MaxAttempts = n
	}
}

// WithEventBuffer задаёт ёмкость канала событий.
func WithEventBuffer(n int) Option {
	return func(opts *Options) {
		opts.EventBuffer = n
	}
}

// LiveChannel держит дуплексное соединение для одного активного заказа.
// Все мутации состояния сериализованы внутренним мьютексом; потребитель
// получает типизированные события из Events().
type LiveChannel struct {
	dialer  Dialer
	logger  *log.Entry
	metrics *metrics.SyncMetrics

	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int

	mu              sync.Mutex
	state           State
	identity        domain.OrderIdentity
	conn            Conn
	buffer          []OutboundMessage
	attempt         int
	reconnectWanted bool
	reconnectTimer  *time.Timer
	generation      uint64
	closed          bool
	events          chan Event
}

// New создаёт live-канал поверх заданного транспорта.
func New(dialer Dialer, options ...Option) *LiveChannel {
	opts := Options{
		BackoffBase: defaultBackoffBase,
		BackoffCap:  defaultBackoffCap,
		MaxAttempts: defaultMaxAttempts,
		EventBuffer: defaultEventBuffer,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "live-channel")
	}

	return &LiveChannel{
		dialer:      dialer,
		logger:      logger,
		metrics:     opts.Metrics,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		maxAttempts: opts.MaxAttempts,
		events:      make(chan Event, opts.EventBuffer),
	}
}

// Events возвращает канал типизированных событий live-канала.
func (c *LiveChannel) Events() <-chan Event {
	return c.events
}

// State возвращает текущее состояние конечного автомата.
func (c *LiveChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectScheduled сообщает, запланирована ли попытка переподключения.
func (c *LiveChannel) ReconnectScheduled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

// Connect открывает соединение для заказа. No-op, если соединение уже
// устанавливается или установлено. Счётчик попыток сбрасывается: явный
// Connect всегда начинает серию переподключений заново.
func (c *LiveChannel) Connect(identity domain.OrderIdentity) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrChannelClosed
	}
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.cancelReconnectLocked()
	c.attempt = 0
	c.reconnectWanted = true
	c.identity = identity
	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	go c.dial(gen, identity)
	return nil
}

// Send отправляет сообщение, если канал подключён, иначе добавляет его в
// упорядоченный буфер, который будет сброшен при подключении.
func (c *LiveChannel) Send(msg OutboundMessage) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrChannelClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.buffer = append(c.buffer, msg)
		c.mu.Unlock()
		return nil
	}

	if err := c.conn.Send(msg); err != nil {
		// Соединение умерло на отправке: сообщение возвращается в буфер,
		// разрыв обрабатывается как неожиданное закрытие.
		c.buffer = append(c.buffer, msg)
		c.logger.WithError(err).Warn("send failed, treating as connection loss")
		c.handleLossLocked()
		c.mu.Unlock()
		c.emit(Event{Kind: EventDisconnected})
		return nil
	}
	c.mu.Unlock()
	return nil
}

// Disconnect явно закрывает соединение: буфер очищается, запланированные
// переподключения отменяются и новые не назначаются.
func (c *LiveChannel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnectWanted = false
	c.cancelReconnectLocked()
	c.buffer = nil
	c.attempt = 0
	c.generation++
	wasConnected := c.state == StateConnected
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	if wasConnected {
		c.emit(Event{Kind: EventDisconnected})
	}
}

// Close окончательно останавливает канал и закрывает поток событий.
func (c *LiveChannel) Close() {
	c.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *LiveChannel) dial(gen uint64, identity domain.OrderIdentity) {
	conn, err := c.dialer.Dial(context.Background(), identity)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}

	if err != nil {
		c.logger.WithError(err).WithField("attempt", c.attempt).Warn("dial failed")
		c.state = StateDisconnected
		if c.reconnectWanted {
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		return
	}

	c.conn = conn
	c.state = StateConnected
	c.attempt = 0

	// Сбрасываем буфер в порядке поступления до того, как новые Send
	// смогут вклиниться: мьютекс удерживается на время сброса.
	buffered := c.buffer
	c.buffer = nil
	for i, msg := range buffered {
		if sendErr := conn.Send(msg); sendErr != nil {
			c.buffer = append(buffered[i:], c.buffer...)
			c.logger.WithError(sendErr).Warn("buffer flush failed, treating as connection loss")
			c.handleLossLocked()
			c.mu.Unlock()
			c.emit(Event{Kind: EventDisconnected})
			return
		}
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventConnected})
	go c.readLoop(gen, conn)
}

func (c *LiveChannel) readLoop(gen uint64, conn Conn) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			c.mu.Lock()
			if c.closed || gen != c.generation {
				c.mu.Unlock()
				return
			}
			c.logger.WithError(err).Info("connection lost")
			c.handleLossLocked()
			c.mu.Unlock()
			c.emit(Event{Kind: EventDisconnected})
			return
		}

		if event, ok := eventFromMessage(msg); ok {
			c.emit(event)
		} else {
			c.logger.WithField("type", msg.Type).Warn("unknown inbound message type")
		}
	}
}

// handleLossLocked переводит канал в DISCONNECTED после неожиданного
// закрытия и, если переподключение желаемо, планирует следующую попытку.
// Вызывается только под мьютексом.
func (c *LiveChannel) handleLossLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.generation++
	if c.reconnectWanted {
		c.scheduleReconnectLocked()
	}
}

// scheduleReconnectLocked назначает следующую попытку с задержкой
// min(base * 2^(attempt-1), cap). После maxAttempts попыток автоматическое
// переподключение прекращается до явного Connect.
func (c *LiveChannel) scheduleReconnectLocked() {
	c.attempt++
	if c.attempt > c.maxAttempts {
		c.logger.WithField("attempts", c.maxAttempts).Warn("reconnect attempts exhausted")
		return
	}

	delay := c.backoffDelay(c.attempt)
	if c.metrics != nil {
		c.metrics.RecordReconnectAttempt()
	}
	c.logger.WithFields(log.Fields{
		"attempt": c.attempt,
		"delay":   delay,
	}).Info("reconnect scheduled")

	gen := c.generation
	identity := c.identity
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || !c.reconnectWanted || gen != c.generation || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		c.state = StateConnecting
		c.mu.Unlock()

		c.dial(gen, identity)
	})
}

func (c *LiveChannel) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *LiveChannel) backoffDelay(attempt int) time.Duration {
	delay := c.backoffBase << (attempt - 1)
	if delay > c.backoffCap || delay <= 0 {
		return c.backoffCap
	}
	return delay
}

// emit доставляет событие потребителю, не блокируясь: если потребитель
// не разбирает события, они отбрасываются с предупреждением.
func (c *LiveChannel) emit(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- event:
	default:
		c.logger.WithField("kind", event.Kind).Warn("event buffer full, dropping event")
	}
}
