package templates

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/testutil"
)

const sprintTOML = `
name = "Sprint"

[[tasks]]
title = "Plan"
`

// TestWatcher_SupersededTimerSkipsImport tests that a debounce timer which
// fires after being replaced does not import the file a second time
func TestWatcher_SupersededTimerSkipsImport(t *testing.T) {
	store := testutil.NewStore(t)
	log, _ := testutil.NewLogger()
	tm := tasks.NewManager(store, log, nil)
	engine := NewEngine(store, lists.NewManager(store, tm, log, nil), tm, log, nil)

	dir := t.TempDir()
	path := filepath.Join(dir, "sprint.toml")
	if err := os.WriteFile(path, []byte(sprintTOML), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(engine, dir, time.Hour)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	ctx := context.Background()

	stale := &pendingImport{}
	current := &pendingImport{timer: time.NewTimer(time.Hour)}
	defer current.timer.Stop()
	w.pending[path] = current

	w.fire(ctx, path, stale)
	select {
	case r := <-w.Results():
		t.Fatalf("superseded timer imported %s", r.Path)
	default:
	}
	if w.pending[path] != current {
		t.Fatal("superseded timer removed the current entry")
	}

	w.fire(ctx, path, current)
	select {
	case r := <-w.Results():
		if r.Err != nil || r.Template == nil || r.Template.Name != "Sprint" {
			t.Errorf("import = %+v", r)
		}
	default:
		t.Fatal("current timer did not import")
	}
	if _, ok := w.pending[path]; ok {
		t.Error("entry still pending after import")
	}
	w.shutdown()
}
