package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/2jz-code/pos-sync/internal/domain"
)

// offlineOrderRepositoryInMemory — in-memory журнал офлайн-заказов для
// локальной разработки и тестов; терминал без пути к файлу журнала тоже
// работает на нём.
type offlineOrderRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.OfflineOrderRecord
}

// NewOfflineOrderRepository возвращает in-memory журнал офлайн-заказов.
func NewOfflineOrderRepository() domain.OfflineOrderRepository {
	return &offlineOrderRepositoryInMemory{
		items: make(map[string]domain.OfflineOrderRecord),
	}
}

// Append сохраняет новую запись журнала, если local_id ещё не занят.
func (r *offlineOrderRepositoryInMemory) Append(record domain.OfflineOrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[record.LocalID]; exists {
		return domain.ErrDuplicateRecord
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[record.LocalID] = cloneRecord(record)
	return nil
}

// Get возвращает запись или ErrRecordNotFound, если её нет.
func (r *offlineOrderRepositoryInMemory) Get(localID string) (domain.OfflineOrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[localID]
	if !ok {
		return domain.OfflineOrderRecord{}, domain.ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

// ListByStatus возвращает записи в статусе, старейшие первыми: порядок
// отправки при сверке совпадает с порядком продаж.
func (r *offlineOrderRepositoryInMemory) ListByStatus(status domain.SyncStatus) ([]domain.OfflineOrderRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OfflineOrderRecord, 0, len(r.items))
	for _, record := range r.items {
		if record.Status != status {
			continue
		}
		result = append(result, cloneRecord(record))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].LocalID < result[j].LocalID
	})

	return result, nil
}

// CountByStatus возвращает число записей в статусе.
func (r *offlineOrderRepositoryInMemory) CountByStatus(status domain.SyncStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, record := range r.items {
		if record.Status == status {
			count++
		}
	}
	return count, nil
}

// MarkSynced переводит pending-запись в synced и фиксирует серверную личность заказа.
func (r *offlineOrderRepositoryInMemory) MarkSynced(localID, serverOrderID, serverOrderNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[localID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if !domain.IsConflictRetryable(record.Status) {
		return domain.ErrRecordNotPending
	}
	record.Status = domain.SyncStatusSynced
	record.ServerOrderID = serverOrderID
	record.ServerOrderNumber = serverOrderNumber
	record.UpdatedAt = time.Now().UTC()
	r.items[localID] = record
	return nil
}

// MarkConflict переводит pending-запись в conflict с причиной для ручного разбора.
func (r *offlineOrderRepositoryInMemory) MarkConflict(localID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[localID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if !domain.IsConflictRetryable(record.Status) {
		return domain.ErrRecordNotPending
	}
	record.Status = domain.SyncStatusConflict
	record.ConflictReason = reason
	record.UpdatedAt = time.Now().UTC()
	r.items[localID] = record
	return nil
}

// cloneRecord глубоко копирует запись: срезы и карты не должны делиться
// с вызывающим кодом.
func cloneRecord(record domain.OfflineOrderRecord) domain.OfflineOrderRecord {
	clone := record
	clone.Payments = append([]domain.PaymentFact(nil), record.Payments...)
	clone.InventoryDeltas = append([]domain.InventoryDelta(nil), record.InventoryDeltas...)
	clone.Approvals = append([]domain.Approval(nil), record.Approvals...)
	clone.DatasetVersions = record.DatasetVersions.Clone()

	clone.Payload.Lines = append([]domain.OrderLine(nil), record.Payload.Lines...)
	for i, line := range record.Payload.Lines {
		clone.Payload.Lines[i].Modifiers = append([]domain.LineModifier(nil), line.Modifiers...)
	}
	clone.Payload.Discounts = append([]domain.Discount(nil), record.Payload.Discounts...)
	clone.Payload.Adjustments = append([]domain.Adjustment(nil), record.Payload.Adjustments...)
	return clone
}

var _ domain.OfflineOrderRepository = (*offlineOrderRepositoryInMemory)(nil)
