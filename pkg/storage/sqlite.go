package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/jllopis/slotsave/pkg/codec"
	saveerrors "github.com/jllopis/slotsave/pkg/errors"
	"github.com/jllopis/slotsave/pkg/slot"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps every slot as one row of a SQLite database.
type SQLiteStorage struct {
	db    *sql.DB
	codec codec.Codec
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteStorage creates a SQLite-backed storage and ensures schema.
func NewSQLiteStorage(db *sql.DB, c codec.Codec) (*SQLiteStorage, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if c == nil {
		c = codec.JSON{}
	}
	if err := ensureSlotSchema(db); err != nil {
		return nil, saveerrors.New(saveerrors.CodeStorage, "create slot schema", err)
	}
	return &SQLiteStorage{db: db, codec: c}, nil
}

// Read decodes the slot row. A missing row reads as an empty container.
func (s *SQLiteStorage) Read(ctx context.Context, name string) (slot.Container, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM save_slots WHERE slot_name = ?`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return slot.Container{}, nil
		}
		return nil, saveerrors.New(saveerrors.CodeStorage, "read slot row", err).WithContext("slot", name)
	}
	c, err := s.codec.Decode(payload)
	if err != nil {
		return nil, saveerrors.New(saveerrors.CodeCorrupt, "decode slot row", err).
			WithContext("slot", name).
			WithContext("codec", s.codec.Name())
	}
	return c, nil
}

// Write encodes c and replaces the slot row.
func (s *SQLiteStorage) Write(ctx context.Context, name string, c slot.Container) error {
	payload, err := s.codec.Encode(c)
	if err != nil {
		return saveerrors.New(saveerrors.CodeInternal, "encode slot", err).WithContext("slot", name)
	}
	if payload == nil {
		payload = []byte{}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO save_slots (slot_name, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(slot_name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`, name, payload, time.Now().UTC())
	if err != nil {
		return saveerrors.New(saveerrors.CodeStorage, "write slot row", err).
			WithContext("slot", name).
			WithRecoverable(true)
	}
	return nil
}

// Delete removes the slot row. Missing rows are ignored.
func (s *SQLiteStorage) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM save_slots WHERE slot_name = ?`, name); err != nil {
		return saveerrors.New(saveerrors.CodeStorage, "delete slot row", err).WithContext("slot", name)
	}
	return nil
}

// Exists reports whether a row for the slot is present.
func (s *SQLiteStorage) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM save_slots WHERE slot_name = ?`, name).Scan(&n); err != nil {
		return false, saveerrors.New(saveerrors.CodeStorage, "check slot row", err).WithContext("slot", name)
	}
	return n > 0, nil
}

// List returns every stored slot name, sorted.
func (s *SQLiteStorage) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot_name FROM save_slots ORDER BY slot_name ASC`)
	if err != nil {
		return nil, saveerrors.New(saveerrors.CodeStorage, "list slot rows", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func ensureSlotSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS save_slots (
			slot_name TEXT PRIMARY KEY,
			payload BLOB,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	return err
}
