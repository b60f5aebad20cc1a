package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/types"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "test.db")
}

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := Open(testDBPath(t), opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

const insertList = `INSERT INTO lists (name, created_at, updated_at) VALUES (?, ?, ?)`

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	s, err := Open(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

// TestOpen_Errors tests argument validation
func TestOpen_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		opts Options
	}{
		{name: "empty path", path: "", opts: DefaultOptions()},
		{name: "unknown driver", path: testDBPath(t), opts: Options{Driver: "postgres"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.path, tt.opts); err == nil {
				t.Error("Open() succeeded, want error")
			}
		})
	}
}

// TestInitSchema_Tables tests that all tables exist after initialization
func TestInitSchema_Tables(t *testing.T) {
	s := openTestStore(t, DefaultOptions())

	tables := []string{
		"lists", "tasks", "templates", "template_tasks", "tags", "task_tags",
		"list_tags", "attribute_definitions", "task_attributes", "list_attributes",
	}
	for _, table := range tables {
		var count int
		err := s.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	v, err := s.UserVersion(context.Background())
	if err != nil {
		t.Fatalf("UserVersion() failed: %v", err)
	}
	if v != SchemaVersion {
		t.Errorf("UserVersion() = %d, want %d", v, SchemaVersion)
	}
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	s := openTestStore(t, DefaultOptions())
	if err := s.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

// TestScope_CommitAndRollback tests that scopes are atomic
func TestScope_CommitAndRollback(t *testing.T) {
	s := openTestStore(t, DefaultOptions())
	ctx := context.Background()
	now := storage.FormatTime(time.Now())

	err := storage.WithScope(ctx, s, func(sc storage.Scope) error {
		res, err := sc.Exec(ctx, insertList, "kept", now, now)
		if err != nil {
			return err
		}
		if res.LastInsertID == 0 || res.RowsAffected != 1 {
			t.Errorf("Exec() result = %+v", res)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithScope() failed: %v", err)
	}

	boom := errors.New("boom")
	err = storage.WithScope(ctx, s, func(sc storage.Scope) error {
		if _, err := sc.Exec(ctx, insertList, "discarded", now, now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithScope() error = %v, want %v", err, boom)
	}

	var names []string
	err = storage.WithScope(ctx, s, func(sc storage.Scope) error {
		rows, err := sc.Query(ctx, `SELECT name FROM lists ORDER BY id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return err
			}
			names = append(names, n)
		}
		return rows.Err()
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(names) != 1 || names[0] != "kept" {
		t.Errorf("names = %v, want [kept]", names)
	}
}

// TestScope_NoRows tests that a missing row surfaces as sql.ErrNoRows
func TestScope_NoRows(t *testing.T) {
	s := openTestStore(t, DefaultOptions())
	ctx := context.Background()

	err := storage.WithScope(ctx, s, func(sc storage.Scope) error {
		var id int64
		return sc.QueryRow(ctx, `SELECT id FROM lists WHERE id = ?`, 42).Scan(&id)
	})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("error = %v, want sql.ErrNoRows", err)
	}
}

// TestTranslate_Constraints tests that constraint violations map to domain kinds
func TestTranslate_Constraints(t *testing.T) {
	s := openTestStore(t, DefaultOptions())
	ctx := context.Background()
	now := storage.FormatTime(time.Now())

	tests := []struct {
		name string
		stmt string
		args []any
		want error
	}{
		{
			name: "duplicate tag name ignoring case",
			stmt: `INSERT INTO tags (name, created_at) VALUES ('Urgent', ?), ('urgent', ?)`,
			args: []any{now, now},
			want: types.ErrConflict,
		},
		{
			name: "dangling list reference",
			stmt: `INSERT INTO tasks (title, list_id, created_at, updated_at) VALUES ('x', 999, ?, ?)`,
			args: []any{now, now},
			want: types.ErrIntegrity,
		},
		{
			name: "invalid status",
			stmt: `INSERT INTO tasks (title, status, created_at, updated_at) VALUES ('x', 'bogus', ?, ?)`,
			args: []any{now, now},
			want: types.ErrIntegrity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.WithScope(ctx, s, func(sc storage.Scope) error {
				_, err := sc.Exec(ctx, tt.stmt, tt.args...)
				return err
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestBeginScope_Busy tests that a held write lock surfaces as a transient error
func TestBeginScope_Busy(t *testing.T) {
	s := openTestStore(t, Options{BusyTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	holder, err := s.BeginScope(ctx)
	if err != nil {
		t.Fatalf("BeginScope() failed: %v", err)
	}
	defer holder.Rollback()

	start := time.Now()
	_, err = s.BeginScope(ctx)
	if !errors.Is(err, types.ErrTransient) {
		t.Fatalf("second BeginScope() error = %v, want transient", err)
	}
	if !types.IsRetryable(err) {
		t.Error("IsRetryable() = false, want true")
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("busy wait took %v, want bounded by busy_timeout", time.Since(start))
	}
}

// TestScope_RollbackAfterCommit tests that Rollback after Commit is a no-op
func TestScope_RollbackAfterCommit(t *testing.T) {
	s := openTestStore(t, DefaultOptions())
	sc, err := s.BeginScope(context.Background())
	if err != nil {
		t.Fatalf("BeginScope() failed: %v", err)
	}
	if err := sc.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
	if err := sc.Rollback(); err != nil {
		t.Errorf("Rollback() after Commit() = %v, want nil", err)
	}
}
