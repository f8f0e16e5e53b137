// Package kv is a small versioned key-value store for per-donor state that
// does not belong in the relational schema, such as the upcoming appointment
// shown on the dashboard.
//
// Values are JSON documents wrapped in an envelope carrying a schema version.
// Readers reject envelopes written with a newer version than they know.
package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// KeyUpcomingAppointment holds the donor's next scheduled appointment.
const KeyUpcomingAppointment = "upcomingAppointment"

// SchemaVersion is the envelope version written by Put.
const SchemaVersion = 1

var (
	ErrNotFound           = errors.New("kv: key not found")
	ErrUnsupportedVersion = errors.New("kv: unsupported envelope version")
)

type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store persists envelopes in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path. The special path ":memory:"
// keeps everything in process memory.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_entries (
			owner TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (owner, key)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores value under (owner, key), replacing any previous value.
func (s *Store) Put(ctx context.Context, owner, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	doc, err := json.Marshal(envelope{Version: SchemaVersion, Data: data})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, owner, key, string(doc), s.now().UTC())
	return err
}

// Get decodes the value under (owner, key) into dst.
func (s *Store) Get(ctx context.Context, owner, key string, dst any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE owner = ? AND key = ?`, owner, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return fmt.Errorf("kv: decode envelope %s: %w", key, err)
	}
	if env.Version < 1 || env.Version > SchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return nil
}

// Delete removes (owner, key). Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, owner, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE owner = ? AND key = ?`, owner, key)
	return err
}
