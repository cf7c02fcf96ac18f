package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/2jz-code/pos-sync/internal/domain"
)

const opTimeout = 5 * time.Second

type offlineOrderRepository struct {
	db *sql.DB
}

// NewOfflineOrderRepository создаёт sqlite-реализацию журнала офлайн-заказов.
func NewOfflineOrderRepository(store *Store) domain.OfflineOrderRepository {
	return &offlineOrderRepository{db: store.DB()}
}

// Append сохраняет новую запись журнала. Повтор local_id — ErrDuplicateRecord.
func (r *offlineOrderRepository) Append(record domain.OfflineOrderRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	payments, err := json.Marshal(record.Payments)
	if err != nil {
		return fmt.Errorf("encode payments: %w", err)
	}
	deltas, err := json.Marshal(record.InventoryDeltas)
	if err != nil {
		return fmt.Errorf("encode inventory deltas: %w", err)
	}
	approvals, err := json.Marshal(record.Approvals)
	if err != nil {
		return fmt.Errorf("encode approvals: %w", err)
	}
	versions, err := json.Marshal(record.DatasetVersions)
	if err != nil {
		return fmt.Errorf("encode dataset versions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO offline_orders (
			local_id, server_order_id, server_order_number, status,
			payload, payments, inventory_deltas, approvals, dataset_versions,
			conflict_reason, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		record.LocalID, record.ServerOrderID, record.ServerOrderNumber, string(record.Status),
		string(payload), string(payments), string(deltas), string(approvals), string(versions),
		record.ConflictReason, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRecord
		}
		return fmt.Errorf("insert offline order: %w", err)
	}
	return nil
}

// Get возвращает запись или ErrRecordNotFound.
func (r *offlineOrderRepository) Get(localID string) (domain.OfflineOrderRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, selectColumns+` FROM offline_orders WHERE local_id = ?`, localID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OfflineOrderRecord{}, domain.ErrRecordNotFound
	}
	if err != nil {
		return domain.OfflineOrderRecord{}, fmt.Errorf("get offline order: %w", err)
	}
	return record, nil
}

// ListByStatus возвращает записи в статусе, старейшие первыми.
func (r *offlineOrderRepository) ListByStatus(status domain.SyncStatus) ([]domain.OfflineOrderRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectColumns+`
		FROM offline_orders
		WHERE status = ?
		ORDER BY created_at ASC, local_id ASC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list offline orders: %w", err)
	}
	defer rows.Close()

	var records []domain.OfflineOrderRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offline order: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offline orders: %w", err)
	}
	return records, nil
}

// CountByStatus возвращает число записей в статусе.
func (r *offlineOrderRepository) CountByStatus(status domain.SyncStatus) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM offline_orders WHERE status = ?`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count offline orders: %w", err)
	}
	return count, nil
}

// MarkSynced переводит pending-запись в synced и фиксирует серверную личность заказа.
func (r *offlineOrderRepository) MarkSynced(localID, serverOrderID, serverOrderNumber string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.transition(ctx, localID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE offline_orders
			SET status = ?, server_order_id = ?, server_order_number = ?, updated_at = ?
			WHERE local_id = ?
		`, string(domain.SyncStatusSynced), serverOrderID, serverOrderNumber, time.Now().UTC(), localID)
		return err
	})
}

// MarkConflict переводит pending-запись в conflict с причиной для ручного разбора.
func (r *offlineOrderRepository) MarkConflict(localID, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.transition(ctx, localID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE offline_orders
			SET status = ?, conflict_reason = ?, updated_at = ?
			WHERE local_id = ?
		`, string(domain.SyncStatusConflict), reason, time.Now().UTC(), localID)
		return err
	})
}

// transition выполняет перевод статуса в транзакции: записи, уже покинувшие
// pending, менять нельзя.
func (r *offlineOrderRepository) transition(ctx context.Context, localID string, update func(*sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM offline_orders WHERE local_id = ?`, localID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("load record status: %w", err)
	}
	if !domain.IsConflictRetryable(domain.SyncStatus(status)) {
		return domain.ErrRecordNotPending
	}

	if err = update(tx); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT local_id, server_order_id, server_order_number, status,
	       payload, payments, inventory_deltas, approvals, dataset_versions,
	       conflict_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.OfflineOrderRecord, error) {
	var record domain.OfflineOrderRecord
	var status, payload, payments, deltas, approvals, versions string

	err := row.Scan(
		&record.LocalID, &record.ServerOrderID, &record.ServerOrderNumber, &status,
		&payload, &payments, &deltas, &approvals, &versions,
		&record.ConflictReason, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return domain.OfflineOrderRecord{}, err
	}

	record.Status = domain.SyncStatus(status)
	if err := json.Unmarshal([]byte(payload), &record.Payload); err != nil {
		return domain.OfflineOrderRecord{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal([]byte(payments), &record.Payments); err != nil {
		return domain.OfflineOrderRecord{}, fmt.Errorf("decode payments: %w", err)
	}
	if err := json.Unmarshal([]byte(deltas), &record.InventoryDeltas); err != nil {
		return domain.OfflineOrderRecord{}, fmt.Errorf("decode inventory deltas: %w", err)
	}
	if err := json.Unmarshal([]byte(approvals), &record.Approvals); err != nil {
		return domain.OfflineOrderRecord{}, fmt.Errorf("decode approvals: %w", err)
	}
	if err := json.Unmarshal([]byte(versions), &record.DatasetVersions); err != nil {
		return domain.OfflineOrderRecord{}, fmt.Errorf("decode dataset versions: %w", err)
	}
	return record, nil
}

// isUniqueViolation распознаёт нарушение первичного ключа sqlite по тексту
// ошибки: драйвер не экспортирует типизированные коды.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}

var _ domain.OfflineOrderRepository = (*offlineOrderRepository)(nil)
