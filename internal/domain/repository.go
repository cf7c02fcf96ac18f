package domain

// OfflineOrderRepository описывает требования к локальному журналу
// офлайн-заказов. Это единственная граница ядра с движком хранения.
type OfflineOrderRepository interface {
	// Append сохраняет новую запись. Возвращает ErrDuplicateRecord, если
	// запись с таким local_id уже существует.
	Append(record OfflineOrderRecord) error
	// Get возвращает запись по локальному идентификатору или ErrRecordNotFound.
	Get(localID string) (OfflineOrderRecord, error)
	// ListByStatus возвращает записи в заданном статусе в порядке создания.
	ListByStatus(status SyncStatus) ([]OfflineOrderRecord, error)
	// CountByStatus возвращает количество записей в заданном статусе.
	CountByStatus(status SyncStatus) (int, error)
	// MarkSynced переводит pending-запись в synced и сохраняет серверные
	// идентификатор и номер заказа.
	MarkSynced(localID, serverOrderID, serverOrderNumber string) error
	// MarkConflict переводит pending-запись в conflict с человекочитаемой причиной.
	MarkConflict(localID, reason string) error
}
