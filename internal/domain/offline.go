package domain

import "time"

// SyncStatus описывает жизненный цикл офлайн-записи при сверке с сервером.
type SyncStatus string

const (
	// SyncStatusPending — запись создана офлайн и ждёт отправки на сервер.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced — сервер принял заказ и выдал серверный идентификатор.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusConflict — сервер отклонил заказ; требуется ручное решение.
	SyncStatusConflict SyncStatus = "conflict"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s SyncStatus) Valid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusConflict:
		return true
	default:
		return false
	}
}

// DatasetVersions — версии справочных данных (каталог, налоги, настройки),
// известные терминалу на момент создания заказа. Сервер использует их,
// чтобы обнаружить заказ, собранный по устаревшим справочникам.
type DatasetVersions map[string]string

// Clone возвращает независимую копию вектора версий.
func (v DatasetVersions) Clone() DatasetVersions {
	if v == nil {
		return nil
	}
	out := make(DatasetVersions, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// OfflineOrderRecord — запись локального журнала о заказе, закрытом офлайн.
// Записи никогда не удаляются ядром: журнал сохраняется для аудита.
type OfflineOrderRecord struct {
	LocalID           string
	ServerOrderID     string
	ServerOrderNumber string
	Status            SyncStatus
	Payload           OrderPayload
	Payments          []PaymentFact
	InventoryDeltas   []InventoryDelta
	Approvals         []Approval
	DatasetVersions   DatasetVersions
	ConflictReason    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ValidateInvariants проверяет минимальные требования к офлайн-записи.
func (r *OfflineOrderRecord) ValidateInvariants() []error {
	var errs []error

	if r.LocalID == "" {
		errs = append(errs, ErrLocalIDRequired)
	}
	if !r.Status.Valid() {
		errs = append(errs, ErrSyncStatusInvalid)
	}
	if len(r.Payments) == 0 {
		errs = append(errs, ErrPaymentRequired)
	}
	errs = append(errs, r.Payload.ValidateInvariants()...)

	return errs
}
