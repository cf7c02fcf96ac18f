package channel

import "encoding/json"

// Типы входящих сообщений live-канала.
const (
	messageTypeStateSync     = "state_sync"
	messageTypeError         = "error"
	messageTypeStockConflict = "stock_conflict"
)

// errorTypeWarning помечает восстановимое предупреждение валидации,
// не блокирующее операцию (например, уведомление о низком остатке).
const errorTypeWarning = "warning"

// OutboundMessage — исходящее сообщение канала: тип операции плюс
// произвольные поля, которые вливаются в корень JSON-объекта.
type OutboundMessage struct {
	Type   string
	Fields map[string]any
}

// MarshalJSON сериализует сообщение в плоский объект {type, ...fields}.
func (m OutboundMessage) MarshalJSON() ([]byte, error) {
	merged := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		merged[k] = v
	}
	merged["type"] = m.Type
	return json.Marshal(merged)
}

// InboundMessage — входящее сообщение канала в проводном формате.
type InboundMessage struct {
	Type              string          `json:"type"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Message           string          `json:"message,omitempty"`
	ErrorType         string          `json:"error_type,omitempty"`
	ItemID            string          `json:"item_id,omitempty"`
	CurrentQuantity   int32           `json:"current_quantity,omitempty"`
	RequestedQuantity int32           `json:"requested_quantity,omitempty"`
	CanOverride       bool            `json:"can_override,omitempty"`
}

// EventKind различает типизированные события, которые канал отдаёт потребителю.
type EventKind string

const (
	// EventConnected — канал установил соединение и сбросил буфер.
	EventConnected EventKind = "connected"
	// EventDisconnected — соединение потеряно или закрыто явно.
	EventDisconnected EventKind = "disconnected"
	// EventStateSync — авторитетная замена локального представления заказа.
	EventStateSync EventKind = "state_sync"
	// EventWarning — восстановимое предупреждение, операция не блокируется.
	EventWarning EventKind = "warning"
	// EventHardError — жёсткая ошибка валидации, блокирует операцию.
	EventHardError EventKind = "hard_error"
	// EventStockConflict — конфликт остатков, допускающий ручной override.
	EventStockConflict EventKind = "stock_conflict"
)

// StockConflict несёт контекст для ручного разрешения конфликта остатков.
type StockConflict struct {
	ItemID            string
	CurrentQuantity   int32
	RequestedQuantity int32
	CanOverride       bool
}

// Event — типизированное событие live-канала.
type Event struct {
	Kind          EventKind
	State         json.RawMessage
	Message       string
	ErrorType     string
	StockConflict *StockConflict
}

// eventFromMessage переводит проводное сообщение в типизированное событие.
// Неизвестные типы возвращают ok=false и пропускаются.
func eventFromMessage(msg InboundMessage) (Event, bool) {
	switch msg.Type {
	case messageTypeStateSync:
		return Event{Kind: EventStateSync, State: msg.Payload}, true
	case messageTypeError:
		if msg.ErrorType == errorTypeWarning {
			return Event{Kind: EventWarning, Message: msg.Message, ErrorType: msg.ErrorType}, true
		}
		return Event{Kind: EventHardError, Message: msg.Message, ErrorType: msg.ErrorType}, true
	case messageTypeStockConflict:
		return Event{
			Kind: EventStockConflict,
			StockConflict: &StockConflict{
				ItemID:            msg.ItemID,
				CurrentQuantity:   msg.CurrentQuantity,
				RequestedQuantity: msg.RequestedQuantity,
				CanOverride:       msg.CanOverride,
			},
		}, true
	default:
		return Event{}, false
	}
}
