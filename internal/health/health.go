// Package health отдаёт состояние терминала по HTTP: доступность журнала
// продаж, связность с сервером и размер неотправленной очереди. Офлайн —
// штатный режим терминала, поэтому потеря связи даёт degraded, а не
// unhealthy: терминал продолжает продавать.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status представляет статус компонента
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check представляет проверку здоровья компонента
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response представляет ответ health check
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker интерфейс для проверки здоровья компонента
type Checker interface {
	Check() Check
}

// Handler обрабатывает health check запросы
type Handler struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
}

// NewHandler создаёт новый health handler
func NewHandler(version string) *Handler {
	return &Handler{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterChecker регистрирует проверку компонента
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

func (h *Handler) snapshot() map[string]Checker {
	h.mu.RLock()
	defer h.mu.RUnlock()
	checkers := make(map[string]Checker, len(h.checkers))
	for k, v := range h.checkers {
		checkers[k] = v
	}
	return checkers
}

// ServeHTTP обрабатывает HTTP запрос
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]Check)
	overallStatus := StatusHealthy

	for name, checker := range h.snapshot() {
		check := checker.Check()
		checks[name] = check

		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	response := Response{
		Status:        overallStatus,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler простой liveness probe (всегда возвращает 200)
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler проверяет готовность терминала. Degraded (офлайн)
// считается готовым: продажи продолжаются на локальном журнале.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	for _, checker := range h.snapshot() {
		check := checker.Check()
		if check.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Pinger проверяется пингом с таймаутом (журнал продаж).
type Pinger interface {
	Ping(ctx context.Context) error
}

// LedgerChecker проверяет доступность локального журнала. Недоступный
// журнал — unhealthy: без него терминал не может принимать офлайн-продажи.
type LedgerChecker struct {
	name   string
	pinger Pinger
}

// NewLedgerChecker создаёт проверку журнала продаж.
func NewLedgerChecker(name string, pinger Pinger) *LedgerChecker {
	return &LedgerChecker{name: name, pinger: pinger}
}

// Check выполняет ping журнала.
func (c *LedgerChecker) Check() Check {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.pinger.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}
	return Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}

// OnlineFunc сообщает текущую связность с сервером.
type OnlineFunc func() bool

// PendingFunc сообщает размер неотправленной очереди.
type PendingFunc func() (int, error)

// SyncChecker отражает состояние синхронизации: офлайн или накопившаяся
// очередь дают degraded с человекочитаемым сообщением.
type SyncChecker struct {
	name    string
	online  OnlineFunc
	pending PendingFunc
}

// NewSyncChecker создаёт проверку состояния синхронизации.
func NewSyncChecker(name string, online OnlineFunc, pending PendingFunc) *SyncChecker {
	return &SyncChecker{name: name, online: online, pending: pending}
}

// Check выполняет проверку синхронизации.
func (c *SyncChecker) Check() Check {
	start := time.Now()

	pending := 0
	if c.pending != nil {
		n, err := c.pending()
		if err != nil {
			return Check{
				Name:       c.name,
				Status:     StatusUnhealthy,
				Message:    fmt.Sprintf("pending count unavailable: %v", err),
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		pending = n
	}

	status := StatusHealthy
	message := ""
	switch {
	case !c.online():
		status = StatusDegraded
		message = fmt.Sprintf("offline, %d orders queued", pending)
	case pending > 0:
		status = StatusDegraded
		message = fmt.Sprintf("online, %d orders awaiting sync", pending)
	}

	return Check{
		Name:       c.name,
		Status:     status,
		Message:    message,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

// SimpleChecker простая проверка с функцией
type SimpleChecker struct {
	name    string
	checkFn func() error
}

// NewSimpleChecker создаёт простую проверку
func NewSimpleChecker(name string, checkFn func() error) *SimpleChecker {
	return &SimpleChecker{
		name:    name,
		checkFn: checkFn,
	}
}

// Check выполняет проверку
func (c *SimpleChecker) Check() Check {
	start := time.Now()
	err := c.checkFn()
	duration := time.Since(start)

	if err != nil {
		return Check{
			Name:       c.name,
			Status:     StatusUnhealthy,
			Message:    err.Error(),
			DurationMs: duration.Milliseconds(),
		}
	}

	return Check{
		Name:       c.name,
		Status:     StatusHealthy,
		DurationMs: duration.Milliseconds(),
	}
}
