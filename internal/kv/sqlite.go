package kv

import (
	"database/sql"
	"fmt"
	"time"
)

// SQLiteBucket persists values in the kv_store table, one logical bucket
// per name. Expired entries are removed lazily on read.
type SQLiteBucket struct {
	db   *sql.DB
	name string
}

// NewSQLiteBucket creates a bucket over the given connection.
func NewSQLiteBucket(db *sql.DB, name string) *SQLiteBucket {
	return &SQLiteBucket{db: db, name: name}
}

// Name returns the bucket name.
func (b *SQLiteBucket) Name() string { return b.name }

// Store upserts value under key. A positive ttl sets the expiry; zero
// clears any previous expiry.
func (b *SQLiteBucket) Store(key, value string, ttl time.Duration) error {
	now := time.Now().UTC().Unix()

	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now + int64(ttl/time.Second), Valid: true}
	}

	_, err := b.db.Exec(`
		INSERT INTO kv_store (bucket, key, value, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, b.name, key, value, expiresAt, now, now)
	if err != nil {
		return fmt.Errorf("kv store %s/%s: %w", b.name, key, err)
	}
	return nil
}

// Get returns the value for key. An expired row is deleted and reported
// as absent.
func (b *SQLiteBucket) Get(key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64

	err := b.db.QueryRow(`
		SELECT value, expires_at FROM kv_store WHERE bucket = ? AND key = ?
	`, b.name, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s/%s: %w", b.name, key, err)
	}

	if expiresAt.Valid && time.Now().UTC().Unix() > expiresAt.Int64 {
		_, _ = b.db.Exec(`DELETE FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key)
		return "", false, nil
	}
	return value, true, nil
}

// Delete removes key, reporting whether a row was deleted.
func (b *SQLiteBucket) Delete(key string) (bool, error) {
	res, err := b.db.Exec(`DELETE FROM kv_store WHERE bucket = ? AND key = ?`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("kv delete %s/%s: %w", b.name, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes every key in the bucket.
func (b *SQLiteBucket) Clear() error {
	if _, err := b.db.Exec(`DELETE FROM kv_store WHERE bucket = ?`, b.name); err != nil {
		return fmt.Errorf("kv clear %s: %w", b.name, err)
	}
	return nil
}
