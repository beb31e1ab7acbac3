package api

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// Record is one accepted envelope.
type Record struct {
	ReceiptID  string    `json:"receipt_id"`
	DedupeKey  string    `json:"dedupe_key"`
	CompanyID  string    `json:"company_id"`
	Type       string    `json:"type"`
	ReceivedAt time.Time `json:"received_at"`
	Envelope   string    `json:"-"`
}

// EventStore persists envelopes, keeping the first copy of each dedupe key.
type EventStore struct {
	db *sql.DB
}

// OpenEventStore opens (or creates) the event database at path. An empty path
// keeps events in memory.
func OpenEventStore(path string) (*EventStore, error) {
	// WAL + busy timeout to avoid "database is locked"
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open event database: %w", err)
	}
	if path == "" {
		db.SetMaxOpenConns(1)
	}
	if err := createEventTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &EventStore{db: db}, nil
}

func createEventTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  receipt_id  TEXT    PRIMARY KEY,
	  dedupe_key  TEXT    NOT NULL UNIQUE,
	  company_id  TEXT    NOT NULL,
	  type        TEXT    NOT NULL,
	  received_at INTEGER NOT NULL,
	  body_json   TEXT    NOT NULL CHECK (json_valid(body_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_received ON events(received_at);
	CREATE INDEX IF NOT EXISTS idx_events_type     ON events(type);
	`)
	if err != nil {
		return fmt.Errorf("failed to create event tables: %w", err)
	}
	return nil
}

// Insert stores rec. inserted is false when the dedupe key was already stored.
func (s *EventStore) Insert(ctx context.Context, rec Record) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events(receipt_id, dedupe_key, company_id, type, received_at, body_json)
		 VALUES(?,?,?,?,?,json(?))
		 ON CONFLICT(dedupe_key) DO NOTHING`,
		rec.ReceiptID, rec.DedupeKey, rec.CompanyID, rec.Type, rec.ReceivedAt.UnixMilli(), rec.Envelope)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n == 1, nil
}

// Recent returns up to limit records, newest first, optionally of one type.
func (s *EventStore) Recent(ctx context.Context, typ string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT receipt_id, dedupe_key, company_id, type, received_at, body_json
		 FROM events
		 WHERE (? = '' OR type = ?)
		 ORDER BY received_at DESC, rowid DESC
		 LIMIT ?`, typ, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var ms int64
		if err := rows.Scan(&rec.ReceiptID, &rec.DedupeKey, &rec.CompanyID, &rec.Type, &ms, &rec.Envelope); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.ReceivedAt = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *EventStore) Close() error {
	return s.db.Close()
}
