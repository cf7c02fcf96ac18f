package domain

import (
	"context"
	"time"
)

// IngestStatus — статус ответа ingest-эндпоинта.
type IngestStatus string

const (
	// IngestStatusSuccess — сервер принял заказ и выдал идентификатор.
	IngestStatusSuccess IngestStatus = "SUCCESS"
	// IngestStatusConflict — сервер обнаружил конфликт; автоматический повтор запрещён.
	IngestStatusConflict IngestStatus = "CONFLICT"
)

// IngestConflict — один конфликт, о котором сообщил сервер.
type IngestConflict struct {
	Message string `json:"message"`
	Dataset string `json:"dataset,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
}

// IngestPayload — полный запрос идемпотентной отправки офлайн-заказа.
// operation_id стабилен для записи (повтор распознаётся как replay),
// nonce свежий на каждую попытку, created_at — текущее время для проверки
// свежести авторизации; исходное время продажи едет отдельным полем.
type IngestPayload struct {
	OperationID      string           `json:"operation_id"`
	Nonce            string           `json:"nonce"`
	DeviceID         string           `json:"device_id"`
	CreatedAt        time.Time        `json:"created_at"`
	OfflineCreatedAt time.Time        `json:"offline_created_at"`
	DatasetVersions  DatasetVersions  `json:"dataset_versions,omitempty"`
	Order            OrderPayload     `json:"order"`
	Payments         []PaymentFact    `json:"payments"`
	InventoryDeltas  []InventoryDelta `json:"inventory_deltas,omitempty"`
	Approvals        []Approval       `json:"approvals,omitempty"`
}

// IngestResponse — результат отправки. Любой другой исход (сеть, 5xx)
// возвращается ошибкой и трактуется как временный сбой.
type IngestResponse struct {
	Status      IngestStatus     `json:"status"`
	OrderID     string           `json:"order_id,omitempty"`
	OrderNumber string           `json:"order_number,omitempty"`
	Conflicts   []IngestConflict `json:"conflicts,omitempty"`
}

// IngestClient отправляет офлайн-заказы на сервер для расчёта.
type IngestClient interface {
	Submit(ctx context.Context, payload IngestPayload) (IngestResponse, error)
}

// SyncEventType определяет тип события жизненного цикла синхронизации.
type SyncEventType string

const (
	// SyncEventOrderSynced — офлайн-заказ принят сервером.
	SyncEventOrderSynced SyncEventType = "order.synced"
	// SyncEventOrderConflict — сервер отклонил офлайн-заказ.
	SyncEventOrderConflict SyncEventType = "order.conflict"
	// SyncEventCheckoutOffline — чекаут завершён в офлайн-ветке.
	SyncEventCheckoutOffline SyncEventType = "checkout.offline"
	// SyncEventCheckoutDegraded — live-чекаут тихо деградировал в офлайн.
	SyncEventCheckoutDegraded SyncEventType = "checkout.degraded"
)

// SyncEvent — событие жизненного цикла синхронизации для внешнего стриминга.
type SyncEvent struct {
	Type      SyncEventType  `json:"type"`
	LocalID   string         `json:"local_id,omitempty"`
	OrderID   string         `json:"order_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SyncEventPublisher публикует события синхронизации наружу; сбои публикации
// никогда не должны блокировать продажу.
type SyncEventPublisher interface {
	Publish(event SyncEvent) error
}
