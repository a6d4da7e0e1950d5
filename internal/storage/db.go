// Package storage owns the SQLite database that backs user profiles,
// saved conversations and the chat log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

const memoryPath = ":memory:"

// DB wraps the SQLite connection pools. Writes go through a single-connection
// writer pool so SQLite never sees concurrent writers; reads use a separate
// pool. An in-memory database shares one connection for both.
type DB struct {
	reader *sql.DB
	writer *sql.DB
	path   string
}

// New opens (or creates) the database at dbPath and initializes the schema.
func New(ctx context.Context, dbPath string) (*DB, error) {
	if dbPath == memoryPath {
		return newMemory(ctx)
	}

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(30000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=synchronous(NORMAL)"

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetConnMaxLifetime(time.Hour)

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)
	reader.SetMaxIdleConns(4)
	reader.SetConnMaxLifetime(time.Hour)

	db := &DB{reader: reader, writer: writer, path: dbPath}
	if err := db.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newMemory(ctx context.Context) (*DB, error) {
	conn, err := sql.Open("sqlite", memoryPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Every new connection to :memory: is a fresh empty database.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	db := &DB{reader: conn, writer: conn, path: memoryPath}
	if err := db.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return err
	}
	if err := InitSchema(ctx, db.writer); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// NewTestDB creates an in-memory database for tests.
func NewTestDB(ctx context.Context) (*DB, error) {
	return New(ctx, memoryPath)
}

// Close closes both pools.
func (db *DB) Close() error {
	if db.reader == db.writer {
		return db.writer.Close()
	}
	rerr := db.reader.Close()
	werr := db.writer.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping verifies both pools can reach the database.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.writer.PingContext(ctx); err != nil {
		return fmt.Errorf("ping writer: %w", err)
	}
	if err := db.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("ping reader: %w", err)
	}
	return nil
}

// WithTx runs fn in a write transaction, committing when fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// warnSlow logs operations slower than threshold.
func warnSlow(ctx context.Context, operation string, start time.Time, threshold time.Duration, args ...any) {
	if d := time.Since(start); d > threshold {
		slog.WarnContext(ctx, "slow database operation",
			append([]any{"operation", operation, "duration_ms", d.Milliseconds()}, args...)...)
	}
}
