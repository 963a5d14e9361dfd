// Package audit maintains an append-only sqlite log of backend lifecycle
// events (added/removed/health transitions), supplementing the spec
// (SPEC_FULL.md §4): dynamic backend management is an operational
// concern an operator needs visibility into.
package audit

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventAdded             EventType = "added"
	EventRemoved           EventType = "removed"
	EventHealthTransition  EventType = "health_transition"
)

// Event is one recorded row.
type Event struct {
	ID        int64
	Backend   string
	Type      EventType
	Detail    string
	Timestamp time.Time
}

// Log is a pure-Go (no cgo) sqlite-backed append-only log.
type Log struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures the events table exists.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	const schema = `
CREATE TABLE IF NOT EXISTS backend_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	backend TEXT NOT NULL,
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error { return l.db.Close() }

// Record appends one lifecycle event.
func (l *Log) Record(ctx context.Context, backend string, evtType EventType, detail string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO backend_events (backend, event_type, detail, timestamp) VALUES (?, ?, ?, ?)`,
		backend, string(evtType), detail, time.Now().UTC(),
	)
	return err
}

// Recent returns the most recent events, newest first, capped at limit.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, backend, event_type, detail, timestamp FROM backend_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var evtType string
		if err := rows.Scan(&e.ID, &e.Backend, &evtType, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = EventType(evtType)
		events = append(events, e)
	}
	return events, rows.Err()
}
