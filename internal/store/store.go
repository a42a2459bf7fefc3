// Package store persists the audit trail of lock-state transitions.
//
// Every transition the daemon performs (lock, unlock, enable, disable,
// permission changes, tap restarts) is appended to a SQLite table with its
// trigger reason, so "when did the machine lock and why" is answerable
// after the fact via `handsoffctl history`.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the handsoffd audit trail.
const schema = `
CREATE TABLE IF NOT EXISTS transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns INTEGER NOT NULL,
    event       TEXT NOT NULL,
    reason      TEXT
);

CREATE INDEX IF NOT EXISTS idx_transitions_timestamp ON transitions(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_transitions_event ON transitions(event, timestamp_ns);
`

// Event names recorded in the audit trail.
const (
	EventLocked              = "locked"
	EventUnlocked            = "unlocked"
	EventAutoLocked          = "auto_locked"
	EventAutoUnlocked        = "auto_unlocked"
	EventEnabled             = "enabled"
	EventDisabled            = "disabled"
	EventPermissionLost      = "permission_lost"
	EventPermissionRestored  = "permission_restored"
	EventTapRestarted        = "tap_restarted"
	EventDaemonStarted       = "daemon_started"
	EventDaemonStopped       = "daemon_stopped"
)

// Transition is one recorded state change.
type Transition struct {
	ID        int64
	Timestamp time.Time
	Event     string
	Reason    string
}

// Store is the SQLite-backed audit trail.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record appends a transition and returns its ID.
func (s *Store) Record(ctx context.Context, event, reason string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (timestamp_ns, event, reason)
		VALUES (?, ?, ?)`,
		time.Now().UnixNano(), event, reason,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns up to limit transitions at or after since, newest first.
// A zero since means no lower bound; limit <= 0 selects a default of 50.
func (s *Store) Recent(ctx context.Context, limit int, since time.Time) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}

	var sinceNs int64
	if !since.IsZero() {
		sinceNs = since.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp_ns, event, COALESCE(reason, '')
		FROM transitions
		WHERE timestamp_ns >= ?
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`,
		sinceNs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var ns int64
		if err := rows.Scan(&t.ID, &ns, &t.Event, &t.Reason); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Timestamp = time.Unix(0, ns)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

// Count returns the number of stored transitions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transitions: %w", err)
	}
	return n, nil
}

// Prune deletes transitions older than the retention window. Zero or
// negative retention disables pruning.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-retention).UnixNano()
	result, err := s.db.ExecContext(ctx, `DELETE FROM transitions WHERE timestamp_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
