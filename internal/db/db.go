// Package db opens the SQLite database and applies the schema.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection.
type DB struct {
	*sql.DB
}

// schema statements run in order on every open; all are idempotent.
var schema = []string{
	// Append-only record of forwarded events, for debugging and auditing.
	// Not a durability layer: the in-memory buffer is the source of truth
	// until flush, and journal rows are written after forwarding.
	`CREATE TABLE IF NOT EXISTS delivery_journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		session TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		value REAL NOT NULL,
		timestamp INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_session_ts ON delivery_journal(session, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_ts ON delivery_journal(timestamp)`,

	// Remote-config cache. expires_at NULL means no expiry.
	`CREATE TABLE IF NOT EXISTS kv_store (
		bucket TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		expires_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (bucket, key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv_store(expires_at) WHERE expires_at IS NOT NULL`,
}

// Open opens the database at path and ensures the schema exists.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &DB{conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
