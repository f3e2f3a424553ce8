// Package db provides a centralized database connection and schema for shadowd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Reconciliation ledger - append-only history of write+verify outcomes
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reconcile_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entry_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			kind TEXT NOT NULL,
			desired INTEGER NOT NULL,
			verified INTEGER NOT NULL,
			mismatch INTEGER NOT NULL,
			source TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reconcile_ts ON reconcile_ledger(timestamp);
		CREATE INDEX IF NOT EXISTS idx_reconcile_kind_ts ON reconcile_ledger(kind, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create reconcile_ledger table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
