// Package store provides the local, durable competition database.
//
// This is the offline half of the sync engine: every domain entity lives
// in a normalized SQLite table on-device, alongside two special tables:
// the append-only scoring event log and the sync queue of mutations
// awaiting the remote store.
//
// The database runs embedded (ncruces/go-sqlite3, WASM build) with WAL
// mode so readers are never blocked by the writer.
//
// Architecture:
//   - Database file: ~/.local/share/caddie/caddie.db (configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: one table per entity kind + scoring_events + sync_queue
//   - Migrations: ordered, additive, tracked in PRAGMA user_version
//
// Write discipline:
//  1. Every mutation path (CLI commands, cascade deletes, remote-origin
//     live updates, archive imports) funnels through the same upsert and
//     delete primitives in this package.
//  2. Multi-row writes that must be atomic (cascades, bulk imports) run
//     in a single transaction.
//  3. Deletes are idempotent: removing an absent row is a no-op.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
)

// ErrNotFound is returned by lookups for ids that are not in the store.
// Cascade deletes never return it; deleting what is already gone is a
// no-op.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func init() {
	// Share one wazero compilation cache across opens so the embedded
	// SQLite runtime compiles once per machine, not once per process.
	dir, err := os.UserCacheDir()
	if err != nil {
		return
	}
	cacheDir := filepath.Join(dir, "caddie", "wazero")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return
	}
	cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
	if err != nil {
		return
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

// DB wraps the local SQLite database.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if necessary) the local database at path and
// applies any pending schema migrations.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("~/.local/share/caddie/caddie.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL for concurrent reads during writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Foreign keys guard the cascade ordering: a trip row cannot be
	// deleted while queue items or children still reference it.
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection for integration with
// code that expects *sql.DB.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// notFoundScan maps sql.ErrNoRows onto ErrNotFound with entity context.
func notFoundScan(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}

// timeToString formats a required timestamp column.
func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// stringToTime parses a required timestamp column. Zero time on parse
// failure; required columns are always written by timeToString.
func stringToTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// timeToNullString converts an optional timestamp to a nullable column.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeToString(*t), Valid: true}
}

// nullStringToTime converts a nullable column to an optional timestamp.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// stringToNullString maps "" onto NULL so optional text columns store
// NULL, not empty strings.
func stringToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
