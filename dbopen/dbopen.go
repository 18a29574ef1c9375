// Package dbopen opens the SQLite metrics store.
//
// Open sets foreign keys on, WAL journaling, synchronous=NORMAL and a busy
// timeout (10s unless WithBusyTimeout says otherwise). The caller
// blank-imports modernc.org/sqlite and creates its own tables.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	driverName         = "sqlite"
	memoryPath         = ":memory:"
	defaultBusyTimeout = 10 * time.Second
)

type settings struct {
	busyTimeout time.Duration
	mkdirAll    bool
}

// Option adjusts Open.
type Option func(*settings)

// WithBusyTimeout sets how long a connection waits on a locked database
// before SQLITE_BUSY. Values below one millisecond keep the default.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d >= time.Millisecond {
			s.busyTimeout = d
		}
	}
}

// WithMkdirAll creates the database's parent directory first.
func WithMkdirAll() Option { return func(s *settings) { s.mkdirAll = true } }

// Open opens the database at path and verifies the connection.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{busyTimeout: defaultBusyTimeout}
	for _, o := range opts {
		o(&s)
	}

	if s.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create dir for %s: %w", path, err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := prepare(db, s); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a single-connection in-memory database closed by
// t.Cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func prepare(db *sql.DB, s settings) error {
	stmts := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyTimeout.Milliseconds()),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("dbopen: %.40q: %w", stmt, err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}
