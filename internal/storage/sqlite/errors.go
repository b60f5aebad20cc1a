package sqlite

import (
	"context"
	"errors"
	"strings"

	"github.com/ncruces/go-sqlite3"

	"github.com/tasklattice/tasklattice/internal/types"
)

// translate maps driver errors onto the domain taxonomy. Messages never
// include SQL text; the driver error is kept as the wrapped cause only for
// transient failures.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var domain *types.Error
	if errors.As(err, &domain) {
		return err
	}

	switch {
	case errors.Is(err, sqlite3.CONSTRAINT_UNIQUE), errors.Is(err, sqlite3.CONSTRAINT_PRIMARYKEY):
		return &types.Error{Kind: types.KindConflict, Message: "duplicate value violates a uniqueness constraint"}
	case errors.Is(err, sqlite3.CONSTRAINT_FOREIGNKEY):
		return &types.Error{Kind: types.KindIntegrity, Message: "referenced row does not exist"}
	case errors.Is(err, sqlite3.CONSTRAINT):
		return &types.Error{Kind: types.KindIntegrity, Message: "stored value violates a table constraint"}
	case errors.Is(err, sqlite3.BUSY), errors.Is(err, sqlite3.LOCKED):
		return types.Transient(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return types.Transient(err)
	}

	// Drivers that do not expose typed codes (libsql) report the SQLite
	// message text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return &types.Error{Kind: types.KindConflict, Message: "duplicate value violates a uniqueness constraint"}
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &types.Error{Kind: types.KindIntegrity, Message: "referenced row does not exist"}
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "SQLITE_BUSY"):
		return types.Transient(err)
	}

	return err
}
