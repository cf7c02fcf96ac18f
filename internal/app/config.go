package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config описывает настройки терминала синхронизации. Все значения
// приходят из окружения с префиксом POS_.
type Config struct {
	// MetricsAddr — адрес HTTP-сервера метрик и health-проверок.
	MetricsAddr string `env:"POS_METRICS_ADDR" envDefault:":9090"`
	// LedgerPath — путь к файлу локального журнала продаж. Пустое
	// значение включает in-memory журнал (разработка и тесты).
	LedgerPath string `env:"POS_LEDGER_PATH"`
	// IngestBaseURL — базовый URL сервера заказов для сверки.
	IngestBaseURL string `env:"POS_INGEST_URL" envDefault:"http://localhost:8000"`
	// IngestToken — токен авторизации ingest-запросов.
	IngestToken string `env:"POS_INGEST_TOKEN"`
	// WebsocketURL — базовый URL live-канала заказов.
	WebsocketURL string `env:"POS_WS_URL" envDefault:"ws://localhost:8000"`
	// WebsocketOrigin — origin для websocket-рукопожатия.
	WebsocketOrigin string `env:"POS_WS_ORIGIN" envDefault:"http://localhost"`
	// DeviceID — стабильный идентификатор терминала в ingest-запросах.
	DeviceID string `env:"POS_DEVICE_ID" envDefault:"terminal-1"`
	// KafkaBrokers — брокеры для публикации событий синхронизации;
	// пустой список отключает публикацию.
	KafkaBrokers []string `env:"POS_KAFKA_BROKERS" envSeparator:","`
	// Currency — валюта терминала по умолчанию.
	Currency string `env:"POS_CURRENCY" envDefault:"USD"`
	// StartOnline — начальное предположение о связности до первого
	// ответа проб.
	StartOnline bool `env:"POS_START_ONLINE" envDefault:"true"`
}

// ReadConfig читает конфигурацию терминала из переменных окружения.
func ReadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
