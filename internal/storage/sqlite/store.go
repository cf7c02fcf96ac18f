// Package sqlite — долговечный журнал офлайн-заказов на встроенной базе.
// Терминал переживает перезапуск процесса и питания: pending-записи
// дочитываются из файла и уходят на сервер при следующей сверке.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultConnTimeout = 5 * time.Second
)

// Store оборачивает SQL-подключение к встроенной базе журнала.
type Store struct {
	db *sql.DB
}

// Open открывает файл журнала (":memory:" для тестов), включает WAL и
// готовит схему. Один терминал — один писатель, поэтому пул ограничен
// одним подключением.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite ledger: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlite store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// ensureSchema применяет прагмы и создаёт таблицу журнала, если её нет.
func (s *Store) ensureSchema(ctx context.Context) error {
	pragmas := []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS offline_orders (
			local_id            TEXT PRIMARY KEY,
			server_order_id     TEXT NOT NULL DEFAULT '',
			server_order_number TEXT NOT NULL DEFAULT '',
			status              TEXT NOT NULL,
			payload             TEXT NOT NULL,
			payments            TEXT NOT NULL,
			inventory_deltas    TEXT NOT NULL,
			approvals           TEXT NOT NULL,
			dataset_versions    TEXT NOT NULL,
			conflict_reason     TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMP NOT NULL,
			updated_at          TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_offline_orders_status_created
			ON offline_orders (status, created_at);
	`)
	if err != nil {
		return fmt.Errorf("create offline_orders schema: %w", err)
	}
	return nil
}

// Close закрывает подключение к базе журнала.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
