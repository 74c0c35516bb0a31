// Package journal provides an append-only record of events forwarded to
// the sinks, for debugging and auditing. It is intentionally not a
// durability layer: entries are written after buffer removal and their
// loss is acceptable.
package journal

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/telemetryd/internal/event"
)

// Entry is one forwarded event as recorded in the journal.
type Entry struct {
	ID        int64
	EventID   string
	Session   string
	Name      string
	Category  string
	Value     float64
	Timestamp time.Time
}

// Journal writes forwarded events to the delivery_journal table.
type Journal struct {
	db *sql.DB
}

// New creates a Journal using the provided database connection.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// RecordForwarded appends one forwarded event. Write failures are logged
// and swallowed: the journal must never disturb the forwarding path.
func (j *Journal) RecordForwarded(session string, ev event.Event) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := j.db.Exec(`
		INSERT INTO delivery_journal (event_id, session, name, category, value, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, session, ev.FullName(), string(ev.Kind), ev.Value, at.UTC().Unix())

	if err != nil {
		log.Warn().Err(err).Str("session", session).Str("event", ev.FullName()).Msg("Failed to journal forwarded event")
	}
}

// BySession returns the most recent entries for a session.
func (j *Journal) BySession(session string, limit int) ([]*Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, event_id, session, name, category, value, timestamp
		FROM delivery_journal
		WHERE session = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Recent returns the most recent entries across all sessions.
func (j *Journal) Recent(limit int) ([]*Entry, error) {
	rows, err := j.db.Query(`
		SELECT id, event_id, session, name, category, value, timestamp
		FROM delivery_journal
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the retention period.
func (j *Journal) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Unix()
	result, err := j.db.Exec(`DELETE FROM delivery_journal WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var timestamp int64

		err := rows.Scan(&entry.ID, &entry.EventID, &entry.Session, &entry.Name, &entry.Category, &entry.Value, &timestamp)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
