// Package storage defines the narrow transactional contract the domain
// components use to reach the relational store.
package storage

import (
	"context"
	"fmt"
)

// Row is a single-row query result. Scan reports storage errors already
// translated into the domain taxonomy.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Result describes the effect of a write statement.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Scope is one transactional handle. All reads and writes issued through a
// scope commit or roll back together.
//
// A scope must not be shared between operations. It is acquired at the start
// of an operation and released on every exit path; use WithScope rather than
// calling BeginScope directly.
type Scope interface {
	// Query runs a parameterized read returning zero or more rows.
	Query(ctx context.Context, query string, args ...any) (Rows, error)

	// QueryRow runs a parameterized read expected to return at most one row.
	// A missing row surfaces from Scan as sql.ErrNoRows.
	QueryRow(ctx context.Context, query string, args ...any) Row

	// Exec runs a parameterized write.
	Exec(ctx context.Context, query string, args ...any) (Result, error)

	// Commit makes the scope's writes durable.
	Commit() error

	// Rollback discards the scope's writes. Calling Rollback after Commit
	// is a no-op.
	Rollback() error
}

// Gateway hands out transactional scopes.
//
// Implementations guarantee atomic commit/rollback per scope and enforce
// foreign-key and uniqueness constraints, reporting violations as
// distinguishable domain errors (types.ErrConflict, types.ErrIntegrity).
// Busy, locked or timed-out stores are reported as types.ErrTransient.
type Gateway interface {
	BeginScope(ctx context.Context) (Scope, error)
}

// WithScope runs fn inside a fresh scope. The scope is committed when fn
// returns nil and rolled back when fn returns an error or panics.
//
// Example:
//
//	err := storage.WithScope(ctx, gw, func(sc storage.Scope) error {
//	    _, err := sc.Exec(ctx, "UPDATE tasks SET title = ? WHERE id = ?", title, id)
//	    return err
//	})
func WithScope(ctx context.Context, gw Gateway, fn func(Scope) error) (err error) {
	sc, err := gw.BeginScope(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sc.Rollback(); rbErr != nil && err == nil {
			err = fmt.Errorf("failed to roll back: %w", rbErr)
		}
	}()

	if err := fn(sc); err != nil {
		return err
	}

	if err := sc.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
