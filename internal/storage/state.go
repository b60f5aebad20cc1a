package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RowState reports whether a soft-deletable row exists and whether it has
// been deleted. table must have id and deleted_at columns.
func RowState(ctx context.Context, sc Scope, table string, id int64) (exists, deleted bool, err error) {
	var deletedAt sql.NullString
	err = sc.QueryRow(ctx, fmt.Sprintf(`SELECT deleted_at FROM %s WHERE id = ?`, table), id).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read %s %d: %w", table, id, err)
	}
	return true, deletedAt.Valid, nil
}

// IsLive reports whether id resolves to a row that is not soft-deleted.
func IsLive(ctx context.Context, sc Scope, table string, id int64) (bool, error) {
	exists, deleted, err := RowState(ctx, sc, table, id)
	return exists && !deleted, err
}
