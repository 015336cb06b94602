package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"autoservice/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	logger *zerolog.Logger

	mu          sync.RWMutex
	technicians map[int64]*models.Technician
	timeSlots   map[int64]*models.TimeSlot
	slotOrder   []int64
}

// NewDB opens (and migrates) the SQLite database at path.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	return NewDBWithTimeout(path, 5000, logger)
}

func NewDBWithTimeout(path string, busyTimeoutMS int, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	inMemory := path == ":memory:"
	if !inMemory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// IMMEDIATE transactions take the write lock up front, so concurrent
	// writers queue on busy_timeout instead of failing on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMS)
	if !inMemory {
		dsn += "&_journal_mode=WAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// each connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		DB:          sqlDB,
		logger:      logger,
		technicians: make(map[int64]*models.Technician),
		timeSlots:   make(map[int64]*models.TimeSlot),
	}

	if err := db.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS technicians (
            id INTEGER PRIMARY KEY,
            center_id INTEGER NOT NULL,
            name TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS technician_services (
            technician_id INTEGER NOT NULL REFERENCES technicians(id),
            service_id INTEGER NOT NULL,
            PRIMARY KEY (technician_id, service_id)
        )`,
		`CREATE TABLE IF NOT EXISTS time_slots (
            id INTEGER PRIMARY KEY,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS technician_time_slots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            technician_id INTEGER NOT NULL,
            center_id INTEGER NOT NULL,
            slot_id INTEGER NOT NULL,
            work_date TEXT NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            UNIQUE (technician_id, slot_id, work_date)
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER NOT NULL,
            center_id INTEGER NOT NULL,
            service_id INTEGER NOT NULL,
            technician_slot_id INTEGER NOT NULL REFERENCES technician_time_slots(id),
            status TEXT NOT NULL,
            applied_credit_id INTEGER,
            special_requests TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		// одна активная запись на слот техника
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_active_slot
            ON bookings(technician_slot_id) WHERE status <> 'CANCELLED'`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_center ON bookings(center_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE TABLE IF NOT EXISTS checklist_results (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            category_id INTEGER NOT NULL,
            result TEXT NOT NULL,
            notes TEXT NOT NULL DEFAULT '',
            updated_at DATETIME NOT NULL,
            UNIQUE (booking_id, category_id)
        )`,
		`CREATE TABLE IF NOT EXISTS parts (
            id INTEGER PRIMARY KEY,
            name TEXT NOT NULL,
            category_id INTEGER NOT NULL,
            unit_price INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS inventory (
            center_id INTEGER NOT NULL,
            part_id INTEGER NOT NULL REFERENCES parts(id),
            current_stock INTEGER NOT NULL CHECK (current_stock >= 0),
            reserved_qty INTEGER NOT NULL DEFAULT 0,
            minimum_stock INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (center_id, part_id)
        )`,
		`CREATE TABLE IF NOT EXISTS work_order_parts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            part_id INTEGER NOT NULL,
            category_id INTEGER,
            quantity_used INTEGER NOT NULL CHECK (quantity_used > 0),
            status TEXT NOT NULL,
            is_customer_supplied BOOLEAN NOT NULL DEFAULT 0,
            source_order_item_id INTEGER,
            approved_by_staff_id INTEGER,
            consumed_at DATETIME,
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_work_order_parts_booking ON work_order_parts(booking_id)`,
		`CREATE TABLE IF NOT EXISTS orders (
            id INTEGER PRIMARY KEY,
            customer_id INTEGER NOT NULL,
            status TEXT NOT NULL,
            fulfillment_center_id INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS order_items (
            id INTEGER PRIMARY KEY,
            order_id INTEGER NOT NULL REFERENCES orders(id),
            part_id INTEGER NOT NULL,
            quantity INTEGER NOT NULL,
            consumed_qty INTEGER NOT NULL DEFAULT 0 CHECK (consumed_qty <= quantity)
        )`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", strings.TrimSpace(query), err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
