// Package kafka публикует события жизненного цикла синхронизации
// (order.synced, order.conflict, checkout.offline, checkout.degraded)
// во внешний брокер для офисных дашбордов и отчётности.
package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/2jz-code/pos-sync/internal/domain"
)

// TopicSyncEvents — топик событий синхронизации терминалов.
const TopicSyncEvents = "pos.sync.events"

// Producer публикует события синхронизации в Kafka. Реализует
// domain.SyncEventPublisher.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	deviceID string
	logger   *log.Entry
}

// NewProducer создает Kafka producer событий синхронизации.
func NewProducer(brokers []string, deviceID string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll // Wait for all in-sync replicas
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true // Включаем идемпотентность
	config.Net.MaxOpenRequests = 1    // Для идемпотентности

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &Producer{
		producer: producer,
		topic:    TopicSyncEvents,
		deviceID: deviceID,
		logger:   log.WithField("component", "kafka-producer"),
	}, nil
}

// Publish отправляет событие синхронизации в топик. Ключ — local_id
// заказа (события одного заказа попадают в одну партицию), для событий
// без local_id ключом служит терминал.
func (p *Producer) Publish(event domain.SyncEvent) error {
	envelope := eventEnvelope{
		DeviceID:  p.deviceID,
		Type:      event.Type,
		LocalID:   event.LocalID,
		OrderID:   event.OrderID,
		Timestamp: event.Timestamp,
		Metadata:  event.Metadata,
	}
	eventData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.LocalID
	if key == "" {
		key = p.deviceID
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(eventData),
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"topic": p.topic,
			"key":   key,
			"event": event.Type,
		}).Error("failed to send message to kafka")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.WithFields(log.Fields{
		"topic":     p.topic,
		"key":       key,
		"event":     event.Type,
		"partition": partition,
		"offset":    offset,
	}).Debug("sync event sent to kafka")

	return nil
}

// Close закрывает producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

// eventEnvelope — событие на проводе, дополненное терминалом-источником.
type eventEnvelope struct {
	DeviceID  string               `json:"device_id"`
	Type      domain.SyncEventType `json:"type"`
	LocalID   string               `json:"local_id,omitempty"`
	OrderID   string               `json:"order_id,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Metadata  map[string]any       `json:"metadata,omitempty"`
}

var _ domain.SyncEventPublisher = (*Producer)(nil)
