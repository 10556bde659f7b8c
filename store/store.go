// Copyright (c) 2025 BVK Chaitanya

// Package store implements sqlite persistence for accounts, clock stubs,
// reservations, transactions, users and config entries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrAccountMissing is returned when no account row is marked selected.
var ErrAccountMissing = errors.New("no account is selected")

type Store struct {
	db *sql.DB
}

// Open opens (and if necessary creates) the database at the given path. Use
// ":memory:" for an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database %q: %w", path, err)
	}
	// Serialize writers through a single connection; sqlite has no row
	// locks and the session layer already linearizes mutations.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			selected INTEGER NOT NULL DEFAULT 0,
			testnet INTEGER NOT NULL DEFAULT 0,
			api_key TEXT NOT NULL,
			api_secret TEXT NOT NULL,
			active_clock_stub INTEGER,
			active_reservation INTEGER,
			active_transaction INTEGER
		);

		CREATE TABLE IF NOT EXISTS clock_stubs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			user_id INTEGER NOT NULL,
			last_interaction INTEGER NOT NULL,
			afk_warn_flag INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_clock_stubs_user ON clock_stubs(user_id, start_time);

		CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			alerted INTEGER NOT NULL DEFAULT 0,
			user_id INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reservations_start ON reservations(start_time);

		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			clock_stub_id INTEGER NOT NULL,
			create_time INTEGER NOT NULL,
			buy_order_ids TEXT NOT NULL DEFAULT '',
			buy_ready INTEGER NOT NULL DEFAULT 0,
			buy_avg_price TEXT,
			sell_order_ids TEXT NOT NULL DEFAULT '',
			sell_ready INTEGER NOT NULL DEFAULT 0,
			sell_avg_price TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_stub ON transactions(clock_stub_id);

		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			tag TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS chat_ids (
			user_id INTEGER PRIMARY KEY,
			chat_id INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS configs (
			section TEXT NOT NULL,
			key TEXT NOT NULL,
			value_type INTEGER NOT NULL,
			value TEXT,
			description TEXT NOT NULL DEFAULT '',
			UNIQUE(section, key)
		);
	`)
	if err != nil {
		return fmt.Errorf("could not initialize database schema: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a sqlite unique/primary-key
// constraint failure.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Timestamps are stored as UTC unix seconds.

func storeTime(t time.Time) int64 {
	return t.UTC().Unix()
}

func loadTime(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func storeNullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: storeTime(*t), Valid: true}
}

func loadNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := loadTime(v.Int64)
	return &t
}

func storeNullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func loadNullID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
