package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLite is the durable local-storage tier.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the key/value database at path.
// An empty path keeps the database in memory for the life of the process.
func OpenSQLite(path string, now func() time.Time) (*SQLite, error) {
	if now == nil {
		now = time.Now
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage database: %w", err)
	}
	if path == "" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := createKVTable(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: now}, nil
}

func createKVTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS kv(
	  key        TEXT PRIMARY KEY,
	  value      TEXT    NOT NULL,
	  expires_at INTEGER NOT NULL DEFAULT 0
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create storage table: %w", err)
	}
	return nil
}

func (s *SQLite) Name() string { return "local" }

func (s *SQLite) Get(key string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := s.db.QueryRow(`SELECT value, expires_at FROM kv WHERE key = ?`, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage get %s: %w", key, err)
	}
	if expiresAt > 0 && s.now().UnixMilli() >= expiresAt {
		_ = s.Delete(key)
		return "", false, nil
	}
	return value, true, nil
}

func (s *SQLite) Set(key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}
	_, err := s.db.Exec(`INSERT INTO kv(key, value, expires_at) VALUES(?,?,?)
	  ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("storage set %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
