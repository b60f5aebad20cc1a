package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/tasklattice/tasklattice/internal/app"
	"github.com/tasklattice/tasklattice/internal/app/apptest"
	"github.com/tasklattice/tasklattice/internal/config"
	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/tasks"
)

func TestOpen_CreatesStore(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "tl.db")
	a, err := app.Open(cfg)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer a.Close()

	if _, err := a.Lists.CreateList(context.Background(), lists.ListInput{Name: "Inbox"}); err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "oracle"
	if _, err := app.Open(cfg); err == nil {
		t.Fatal("Open() succeeded with an invalid driver")
	}
}

func TestObserve_ReceivesCommittedEvents(t *testing.T) {
	ctx := context.Background()
	a := apptest.New(t)
	rec := &events.Recorder{}
	a.Observe(rec)

	l, err := a.Lists.CreateList(ctx, lists.ListInput{Name: "Groceries"})
	if err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	if _, err := a.Tasks.CreateTask(ctx, tasks.TaskInput{Title: "Milk", ListID: &l.ID}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if _, err := a.Tasks.CreateTask(ctx, tasks.TaskInput{Title: ""}); err == nil {
		t.Fatal("CreateTask() accepted an empty title")
	}

	if got := rec.Count(events.EntityList, events.ActionCreated); got != 1 {
		t.Errorf("list created events = %d, want 1", got)
	}
	if got := rec.Count(events.EntityTask, events.ActionCreated); got != 1 {
		t.Errorf("task created events = %d, want 1", got)
	}
}

func TestMigration_SharesComponents(t *testing.T) {
	a := apptest.New(t)
	c := a.Migration()
	if c.Lists != a.Lists || c.Tasks != a.Tasks || c.Templates != a.Templates {
		t.Error("Migration() returned components from another App")
	}
}
