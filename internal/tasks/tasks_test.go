package tasks_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tasklattice/tasklattice/internal/events"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/storage"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/testutil"
	"github.com/tasklattice/tasklattice/internal/types"
)

type fixture struct {
	store  storage.Gateway
	tasks  *tasks.Manager
	lists  *lists.Manager
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore(t)
	log, _ := testutil.NewLogger()
	rec := &events.Recorder{}
	tm := tasks.NewManager(store, log, rec)
	return &fixture{store: store, tasks: tm, lists: lists.NewManager(store, tm, log, rec), events: rec}
}

func (f *fixture) list(t *testing.T, name string) int64 {
	t.Helper()
	l, err := f.lists.CreateList(context.Background(), lists.ListInput{Name: name})
	if err != nil {
		t.Fatalf("CreateList(%q) failed: %v", name, err)
	}
	return l.ID
}

func (f *fixture) task(t *testing.T, listID int64, title string, status types.Status) *types.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), tasks.TaskInput{Title: title, ListID: &listID, Status: status})
	if err != nil {
		t.Fatalf("CreateTask(%q) failed: %v", title, err)
	}
	return task
}

func (f *fixture) status(t *testing.T, id int64) types.Status {
	t.Helper()
	task, err := f.tasks.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%d) failed: %v", id, err)
	}
	return task.Status
}

func (f *fixture) activeCount(t *testing.T, listID int64) int {
	t.Helper()
	s := types.StatusInProgress
	got, err := f.tasks.ListTasks(context.Background(), tasks.TaskQuery{ListID: &listID, Status: &s})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	return len(got)
}

func ptr[T any](v T) *T { return &v }

// TestStartTask_MilkAndEggs tests that starting a second task pauses the first
func TestStartTask_MilkAndEggs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.list(t, "Root")

	milk := f.task(t, root, "Buy milk", types.StatusPending)
	started, err := f.tasks.StartTask(ctx, milk.ID)
	if err != nil {
		t.Fatalf("StartTask(milk) failed: %v", err)
	}
	if started.Status != types.StatusInProgress {
		t.Fatalf("milk status = %s, want in_progress", started.Status)
	}

	eggs := f.task(t, root, "Buy eggs", types.StatusPending)
	if _, err := f.tasks.StartTask(ctx, eggs.ID); err != nil {
		t.Fatalf("StartTask(eggs) failed: %v", err)
	}

	if got := f.status(t, milk.ID); got != types.StatusPending {
		t.Errorf("milk status = %s, want pending", got)
	}
	if got := f.status(t, eggs.ID); got != types.StatusInProgress {
		t.Errorf("eggs status = %s, want in_progress", got)
	}
	if n := f.events.Count(events.EntityTask, events.ActionAutoPaused); n != 1 {
		t.Errorf("auto_paused events = %d, want 1", n)
	}
}

// TestStartTask_OtherListsUnaffected tests that the invariant is per list
func TestStartTask_OtherListsUnaffected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.list(t, "A"), f.list(t, "B")

	inA := f.task(t, a, "a", types.StatusInProgress)
	inB := f.task(t, b, "b", types.StatusPending)
	if _, err := f.tasks.StartTask(ctx, inB.ID); err != nil {
		t.Fatalf("StartTask() failed: %v", err)
	}
	if got := f.status(t, inA.ID); got != types.StatusInProgress {
		t.Errorf("task in other list = %s, want in_progress", got)
	}
}

// TestCreateTask_InProgressPausesActive tests enforcement on creation
func TestCreateTask_InProgressPausesActive(t *testing.T) {
	f := newFixture(t)
	root := f.list(t, "Root")

	first := f.task(t, root, "first", types.StatusInProgress)
	second := f.task(t, root, "second", types.StatusInProgress)

	if got := f.status(t, first.ID); got != types.StatusPending {
		t.Errorf("first status = %s, want pending", got)
	}
	if got := f.status(t, second.ID); got != types.StatusInProgress {
		t.Errorf("second status = %s, want in_progress", got)
	}
}

// TestStartTask_Concurrent tests that concurrent starts leave one active task
func TestStartTask_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.list(t, "Root")

	const n = 8
	ids := make([]int64, n)
	for i := range ids {
		ids[i] = f.task(t, root, "task", types.StatusPending).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			var err error
			for attempt := 0; attempt < 5; attempt++ {
				if _, err = f.tasks.StartTask(ctx, id); !types.IsRetryable(err) {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			if err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("StartTask() failed: %v", err)
	}

	if got := f.activeCount(t, root); got != 1 {
		t.Errorf("in_progress tasks = %d, want 1", got)
	}
}

// TestCreateTask_Validation tests input validation
func TestCreateTask_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.list(t, "Root")
	missing := int64(999)

	tests := []struct {
		name string
		in   tasks.TaskInput
		want error
	}{
		{name: "empty title", in: tasks.TaskInput{Title: "  ", ListID: &root}, want: types.ErrValidation},
		{name: "title too long", in: tasks.TaskInput{Title: strings.Repeat("x", 501), ListID: &root}, want: types.ErrValidation},
		{name: "unknown status", in: tasks.TaskInput{Title: "t", ListID: &root, Status: "later"}, want: types.ErrValidation},
		{name: "unknown priority", in: tasks.TaskInput{Title: "t", ListID: &root, Priority: "urgent"}, want: types.ErrValidation},
		{name: "negative estimate", in: tasks.TaskInput{Title: "t", ListID: &root, EstimatedHours: ptr(-1.0)}, want: types.ErrValidation},
		{name: "no list", in: tasks.TaskInput{Title: "t"}, want: types.ErrValidation},
		{name: "missing list", in: tasks.TaskInput{Title: "t", ListID: &missing}, want: types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.tasks.CreateTask(ctx, tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateTask() error = %v, want %v", err, tt.want)
			}
		})
	}

	task, err := f.tasks.CreateTask(ctx, tasks.TaskInput{Title: strings.Repeat("x", 500), ListID: &root})
	if err != nil {
		t.Fatalf("CreateTask(500 chars) failed: %v", err)
	}
	if task.Status != types.StatusPending || task.Priority != types.PriorityNormal {
		t.Errorf("defaults = %s/%s, want pending/normal", task.Status, task.Priority)
	}
}

// TestUpdateTask_Fields tests partial updates and completion tracking
func TestUpdateTask_Fields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root, other := f.list(t, "Root"), f.list(t, "Other")
	task := f.task(t, root, "draft", types.StatusPending)

	due := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	updated, err := f.tasks.UpdateTask(ctx, task.ID, tasks.TaskPatch{
		Title:          ptr("final"),
		Notes:          ptr("remember the receipt"),
		Priority:       ptr(types.PriorityHigh),
		DueDate:        &due,
		EstimatedHours: ptr(1.5),
		ListID:         &other,
	})
	if err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	if updated.Title != "final" || updated.Priority != types.PriorityHigh || *updated.ListID != other {
		t.Errorf("UpdateTask() = %+v", updated)
	}

	got, err := f.tasks.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if !got.DueDate.Equal(due) || *got.EstimatedHours != 1.5 || got.Notes != "remember the receipt" {
		t.Errorf("GetTask() = %+v", got)
	}

	done, err := f.tasks.CompleteTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("CompleteTask() failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Error("CompletedAt not set on completion")
	}

	reopened, err := f.tasks.PauseTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("PauseTask() failed: %v", err)
	}
	if reopened.CompletedAt != nil || reopened.Status != types.StatusPending {
		t.Errorf("reopened = %+v, want pending without completed_at", reopened)
	}

	cleared, err := f.tasks.UpdateTask(ctx, task.ID, tasks.TaskPatch{ClearDueDate: true, ClearEstimate: true})
	if err != nil {
		t.Fatalf("UpdateTask(clear) failed: %v", err)
	}
	if cleared.DueDate != nil || cleared.EstimatedHours != nil {
		t.Errorf("cleared = %+v", cleared)
	}
}

// TestUpdateTask_Errors tests not-found and validation paths
func TestUpdateTask_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.list(t, "Root")
	task := f.task(t, root, "t", types.StatusPending)
	missing := int64(404)

	if _, err := f.tasks.UpdateTask(ctx, missing, tasks.TaskPatch{Title: ptr("x")}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("UpdateTask(missing) error = %v, want not found", err)
	}
	if _, err := f.tasks.UpdateTask(ctx, task.ID, tasks.TaskPatch{ListID: &missing}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("UpdateTask(missing list) error = %v, want not found", err)
	}
	if _, err := f.tasks.UpdateTask(ctx, task.ID, tasks.TaskPatch{Title: ptr("")}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("UpdateTask(empty title) error = %v, want validation", err)
	}

	if ok, err := f.tasks.DeleteTask(ctx, task.ID); err != nil || !ok {
		t.Fatalf("DeleteTask() = %v, %v", ok, err)
	}
	deletedOps := []struct {
		name string
		call func() error
	}{
		{name: "start", call: func() error { _, err := f.tasks.StartTask(ctx, task.ID); return err }},
		{name: "update", call: func() error { _, err := f.tasks.UpdateTask(ctx, task.ID, tasks.TaskPatch{Title: ptr("x")}); return err }},
		{name: "move", call: func() error { _, err := f.lists.MoveTask(ctx, task.ID, nil); return err }},
	}
	for _, op := range deletedOps {
		if err := op.call(); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("%s(deleted task) error = %v, want not found", op.name, err)
		}
	}
}

// TestDeleteTask_Idempotent tests that repeated deletes return false
func TestDeleteTask_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, f.list(t, "Root"), "t", types.StatusPending)

	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "live", id: task.ID, want: true},
		{name: "already deleted", id: task.ID, want: false},
		{name: "missing", id: 12345, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.tasks.DeleteTask(ctx, tt.id)
			if err != nil {
				t.Fatalf("DeleteTask() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("DeleteTask() = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := f.tasks.GetTask(ctx, task.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("GetTask(deleted) error = %v, want not found", err)
	}
}

// TestListTasks_FiltersAndPaging tests conjunctive filters and newest-first order
func TestListTasks_FiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.list(t, "A"), f.list(t, "B")

	var inA []int64
	for _, title := range []string{"one", "two", "three"} {
		inA = append(inA, f.task(t, a, title, types.StatusPending).ID)
	}
	f.task(t, b, "elsewhere", types.StatusPending)
	if _, err := f.tasks.BlockTask(ctx, inA[0]); err != nil {
		t.Fatalf("BlockTask() failed: %v", err)
	}

	all, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{ListID: &a})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != inA[2] || all[2].ID != inA[0] {
		t.Errorf("ListTasks(list A) ids = %v, want newest first", ids(all))
	}

	pending := types.StatusPending
	filtered, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{ListID: &a, Status: &pending})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("ListTasks(list A, pending) = %v, want 2 tasks", ids(filtered))
	}

	page, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != inA[2] {
		t.Errorf("ListTasks(limit 2 offset 1) = %v", ids(page))
	}

	if _, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{Limit: -1}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("ListTasks(negative limit) error = %v, want validation", err)
	}
}

// TestMoveTask_PausesActiveInTarget tests that moving an active task re-applies the invariant
func TestMoveTask_PausesActiveInTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.list(t, "A"), f.list(t, "B")
	moving := f.task(t, a, "moving", types.StatusInProgress)
	resident := f.task(t, b, "resident", types.StatusInProgress)

	ok, err := f.lists.MoveTask(ctx, moving.ID, &b)
	if err != nil || !ok {
		t.Fatalf("MoveTask() = %v, %v", ok, err)
	}
	if got := f.status(t, resident.ID); got != types.StatusPending {
		t.Errorf("resident status = %s, want pending", got)
	}
	if got := f.activeCount(t, b); got != 1 {
		t.Errorf("in_progress in target = %d, want 1", got)
	}

	if _, err := f.lists.MoveTask(ctx, moving.ID, nil); err != nil {
		t.Fatalf("MoveTask(nil) failed: %v", err)
	}
	got, err := f.tasks.GetTask(ctx, moving.ID)
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.ListID != nil {
		t.Errorf("ListID = %v, want nil", *got.ListID)
	}

	missing := int64(77)
	if _, err := f.lists.MoveTask(ctx, moving.ID, &missing); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("MoveTask(missing list) error = %v, want not found", err)
	}
	if _, err := f.lists.MoveTask(ctx, 9999, &a); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("MoveTask(missing task) error = %v, want not found", err)
	}
}

func ids(ts []*types.Task) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
