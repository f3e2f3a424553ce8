// Package ledger provides an append-only history of reconciliation outcomes
// for auditing. Every write+verify cycle against hardware leaves one entry,
// whether it came from a live delta, a document fetch or the control API.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry represents a single reconciliation outcome
type Entry struct {
	ID        int64     `json:"id"`
	EntryID   string    `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Desired   bool      `json:"desired"`
	Verified  bool      `json:"verified"`
	Mismatch  bool      `json:"mismatch"`
	Source    string    `json:"source"`
}

// Ledger provides append-only reconciliation logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a reconciliation outcome to the ledger
func (l *Ledger) Append(kind string, desired, verified bool, source string) error {
	now := time.Now().UTC().Unix()

	_, err := l.db.Exec(`
		INSERT INTO reconcile_ledger (entry_id, timestamp, kind, desired, verified, mismatch, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), now, kind, desired, verified, desired != verified, source)

	return err
}

// Record appends an outcome, logging rather than returning failures. The
// audit trail must never block or fail a reconciliation cycle.
func (l *Ledger) Record(kind string, desired, verified bool, source string) {
	if err := l.Append(kind, desired, verified, source); err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("Failed to record reconciliation outcome")
	}
}

// Recent returns the newest entries, most recent first
func (l *Ledger) Recent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, entry_id, timestamp, kind, desired, verified, mismatch, source
		FROM reconcile_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &e.EntryID, &ts, &e.Kind, &e.Desired, &e.Verified, &e.Mismatch, &e.Source); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// DeleteOlderThan removes entries older than the retention period.
// Returns the number of deleted entries.
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Unix()

	result, err := l.db.Exec(`DELETE FROM reconcile_ledger WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old ledger entries: %w", err)
	}

	return result.RowsAffected()
}
