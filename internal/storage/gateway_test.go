package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeScope struct {
	commits   int
	rollbacks int
	commitErr error
}

func (f *fakeScope) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeScope) QueryRow(ctx context.Context, query string, args ...any) Row {
	return nil
}

func (f *fakeScope) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return Result{}, nil
}

func (f *fakeScope) Commit() error {
	f.commits++
	return f.commitErr
}

func (f *fakeScope) Rollback() error {
	f.rollbacks++
	return nil
}

type fakeGateway struct {
	scope    *fakeScope
	beginErr error
}

func (g *fakeGateway) BeginScope(ctx context.Context) (Scope, error) {
	if g.beginErr != nil {
		return nil, g.beginErr
	}
	return g.scope, nil
}

// TestWithScope_Commit tests that a successful fn commits exactly once
func TestWithScope_Commit(t *testing.T) {
	gw := &fakeGateway{scope: &fakeScope{}}
	if err := WithScope(context.Background(), gw, func(Scope) error { return nil }); err != nil {
		t.Fatalf("WithScope() failed: %v", err)
	}
	if gw.scope.commits != 1 || gw.scope.rollbacks != 0 {
		t.Errorf("commits=%d rollbacks=%d, want 1/0", gw.scope.commits, gw.scope.rollbacks)
	}
}

// TestWithScope_RollbackOnError tests that fn errors roll back and propagate
func TestWithScope_RollbackOnError(t *testing.T) {
	gw := &fakeGateway{scope: &fakeScope{}}
	want := errors.New("boom")
	err := WithScope(context.Background(), gw, func(Scope) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("WithScope() error = %v, want %v", err, want)
	}
	if gw.scope.commits != 0 || gw.scope.rollbacks != 1 {
		t.Errorf("commits=%d rollbacks=%d, want 0/1", gw.scope.commits, gw.scope.rollbacks)
	}
}

// TestWithScope_RollbackOnPanic tests that the scope is released when fn panics
func TestWithScope_RollbackOnPanic(t *testing.T) {
	gw := &fakeGateway{scope: &fakeScope{}}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = WithScope(context.Background(), gw, func(Scope) error { panic("bad") })
	}()
	if gw.scope.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", gw.scope.rollbacks)
	}
}

// TestWithScope_CommitFailure tests that a failed commit is rolled back
func TestWithScope_CommitFailure(t *testing.T) {
	want := errors.New("disk full")
	gw := &fakeGateway{scope: &fakeScope{commitErr: want}}
	err := WithScope(context.Background(), gw, func(Scope) error { return nil })
	if !errors.Is(err, want) {
		t.Fatalf("WithScope() error = %v, want %v", err, want)
	}
	if gw.scope.rollbacks != 1 {
		t.Errorf("rollbacks = %d, want 1", gw.scope.rollbacks)
	}
}

// TestWithScope_BeginFailure tests that begin errors are returned without a scope
func TestWithScope_BeginFailure(t *testing.T) {
	want := errors.New("locked")
	gw := &fakeGateway{beginErr: want}
	called := false
	err := WithScope(context.Background(), gw, func(Scope) error { called = true; return nil })
	if !errors.Is(err, want) || called {
		t.Errorf("WithScope() error = %v, called = %v", err, called)
	}
}

func TestFormatTime_FixedWidth(t *testing.T) {
	a := time.Date(2024, 5, 1, 10, 0, 0, 100000000, time.UTC)
	b := time.Date(2024, 5, 1, 10, 0, 0, 120000000, time.UTC)
	if !(FormatTime(a) < FormatTime(b)) {
		t.Errorf("FormatTime ordering broken: %s >= %s", FormatTime(a), FormatTime(b))
	}
	if got := ParseTime(FormatTime(a)); !got.Equal(a) {
		t.Errorf("ParseTime(FormatTime(a)) = %v, want %v", got, a)
	}
	local := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	if FormatTime(local) != "2024-05-01T10:00:00.000000000Z" {
		t.Errorf("FormatTime(local) = %s", FormatTime(local))
	}
}

func TestEscapeLike(t *testing.T) {
	if got := Contains(`50%_off\`); got != `%50\%\_off\\%` {
		t.Errorf("Contains() = %q", got)
	}
	if got := Placeholders(3); got != "?, ?, ?" {
		t.Errorf("Placeholders(3) = %q", got)
	}
}
