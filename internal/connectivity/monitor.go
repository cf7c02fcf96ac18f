// Package connectivity раздаёт переходы online/offline подписчикам ядра.
// Источник сигнала — хост-окружение; ядро само связность не прощупывает.
package connectivity

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

// Monitor хранит текущее состояние связности и рассылает переходы.
// Повторная установка того же состояния перехода не порождает.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
	closed bool
	logger *log.Entry
}

// NewMonitor создаёт монитор с начальным состоянием связности.
func NewMonitor(online bool, logger *log.Entry) *Monitor {
	if logger == nil {
		logger = log.New().WithField("component", "connectivity")
	}
	return &Monitor{online: online, logger: logger}
}

// Online возвращает текущее состояние связности.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set применяет сигнал от хост-окружения и рассылает переход подписчикам.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.closed || m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	m.logger.WithField("online", online).Info("connectivity transition")

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Подписчик не успевает разбирать переходы; пропуск лучше блокировки.
			m.logger.Warn("subscriber channel full, dropping transition")
		}
	}
}

// Subscribe возвращает канал переходов online/offline. Канал закрывается
// вместе с монитором.
func (m *Monitor) Subscribe() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan bool, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Close закрывает все подписки; дальнейшие Set игнорируются.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}
