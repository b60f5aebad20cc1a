// Package sqlite implements the storage gateway on an embedded SQLite database.
//
// The database runs in WAL mode so readers proceed during writes. Every
// scope is an IMMEDIATE transaction: the write lock is taken at BEGIN, so
// two operations that read-check-write the same list serialize instead of
// interleaving. Waiting for the lock is bounded by busy_timeout; a store that
// stays locked surfaces as types.ErrTransient.
//
// Architecture:
//   - Database file: .tasklattice/tasklattice.db (configurable)
//   - Schema: lists, tasks, templates, template_tasks, tags, task_tags,
//     list_tags, attribute_definitions, task_attributes, list_attributes
//   - Foreign keys enforced per connection
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tasklattice/tasklattice/internal/storage"
)

// Options configures how the database is opened.
type Options struct {
	// Driver selects a registered driver ("sqlite" by default, "libsql"
	// when built with the libsql tag).
	Driver string

	// BusyTimeout bounds how long a scope waits for the write lock.
	BusyTimeout time.Duration

	// MaxOpenConns limits the connection pool (default 25).
	MaxOpenConns int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Driver:       "sqlite",
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// driverSpec maps a logical driver name to a database/sql driver and DSN.
type driverSpec struct {
	sqlName string
	dsn     func(path string, opts Options) string

	// singleConn drivers cannot set pragmas through the DSN. They get one
	// pooled connection with the pragmas executed after open, which also
	// serializes scopes without IMMEDIATE transactions.
	singleConn bool
}

var drivers = map[string]driverSpec{}

// Store wraps the database connection pool and implements storage.Gateway.
type Store struct {
	conn *sql.DB
	path string
}

var _ storage.Gateway = (*Store)(nil)

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist, it will be created. Call InitSchema before
// use. The caller MUST call Close() when done.
//
// Example:
//
//	store, err := sqlite.Open(".tasklattice/tasklattice.db", sqlite.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.Driver == "" {
		opts.Driver = "sqlite"
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultOptions().MaxOpenConns
	}

	spec, ok := drivers[opts.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown database driver %q (this binary supports %s)", opts.Driver, driverNames())
	}

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open(spec.sqlName, spec.dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if spec.singleConn {
		conn.SetMaxOpenConns(1)
		conn.SetConnMaxLifetime(0)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout.Milliseconds()),
			"PRAGMA foreign_keys=ON",
		}
		for _, p := range pragmas {
			if _, err := conn.Exec(p); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", p, err)
			}
		}
	} else {
		conn.SetMaxOpenConns(opts.MaxOpenConns)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Store{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// BeginScope starts a new transaction. The scope owns one pooled connection
// until it is committed or rolled back.
func (s *Store) BeginScope(ctx context.Context) (storage.Scope, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, translate(err)
	}
	return &scope{tx: tx}, nil
}

// scope adapts *sql.Tx to storage.Scope, translating driver errors.
type scope struct {
	tx   *sql.Tx
	done bool
}

func (sc *scope) Query(ctx context.Context, query string, args ...any) (storage.Rows, error) {
	rows, err := sc.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return &rowsAdapter{rows: rows}, nil
}

func (sc *scope) QueryRow(ctx context.Context, query string, args ...any) storage.Row {
	return &rowAdapter{row: sc.tx.QueryRowContext(ctx, query, args...)}
}

func (sc *scope) Exec(ctx context.Context, query string, args ...any) (storage.Result, error) {
	res, err := sc.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return storage.Result{}, translate(err)
	}
	affected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return storage.Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

func (sc *scope) Commit() error {
	if sc.done {
		return nil
	}
	if err := sc.tx.Commit(); err != nil {
		return translate(err)
	}
	sc.done = true
	return nil
}

func (sc *scope) Rollback() error {
	if sc.done {
		return nil
	}
	sc.done = true
	if err := sc.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return translate(err)
	}
	return nil
}

type rowAdapter struct {
	row *sql.Row
}

func (r *rowAdapter) Scan(dest ...any) error {
	if err := r.row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return translate(err)
	}
	return nil
}

type rowsAdapter struct {
	rows *sql.Rows
}

func (r *rowsAdapter) Next() bool { return r.rows.Next() }

func (r *rowsAdapter) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return translate(err)
	}
	return nil
}

func (r *rowsAdapter) Err() error {
	if err := r.rows.Err(); err != nil {
		return translate(err)
	}
	return nil
}

func (r *rowsAdapter) Close() error { return r.rows.Close() }

func driverNames() string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
