package templates_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/templates"
	"github.com/tasklattice/tasklattice/internal/testutil"
	"github.com/tasklattice/tasklattice/internal/types"
)

type fixture struct {
	lists  *lists.Manager
	tasks  *tasks.Manager
	engine *templates.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore(t)
	log, _ := testutil.NewLogger()
	tm := tasks.NewManager(store, log, nil)
	lm := lists.NewManager(store, tm, log, nil)
	return &fixture{lists: lm, tasks: tm, engine: templates.NewEngine(store, lm, tm, log, nil)}
}

func ptr[T any](v T) *T { return &v }

type shape struct {
	Title       string
	Description string
	Priority    types.Priority
	Hours       *float64
}

func shapes(ts []*types.Task) []shape {
	out := make([]shape, len(ts))
	for i, t := range ts {
		out[i] = shape{t.Title, t.Description, t.Priority, t.EstimatedHours}
	}
	return out
}

// TestTemplate_RoundTrip tests that derive-then-apply reproduces structure with pending status
func TestTemplate_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	src, err := f.lists.CreateList(ctx, lists.ListInput{Name: "Launch"})
	if err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	inputs := []tasks.TaskInput{
		{Title: "Write notes", Description: "draft", Priority: types.PriorityHigh, EstimatedHours: ptr(2.0), Status: types.StatusCompleted},
		{Title: "Ship", Priority: types.PriorityCritical, Status: types.StatusInProgress},
		{Title: "Announce", Description: "blog post", Status: types.StatusBlocked},
	}
	for _, in := range inputs {
		in.ListID = &src.ID
		if _, err := f.tasks.CreateTask(ctx, in); err != nil {
			t.Fatalf("CreateTask(%q) failed: %v", in.Title, err)
		}
	}

	tpl, err := f.engine.CreateTemplateFromList(ctx, src.ID, "Launch plan", "", "release")
	if err != nil {
		t.Fatalf("CreateTemplateFromList() failed: %v", err)
	}
	if len(tpl.Tasks) != 3 || tpl.Tasks[0].Title != "Write notes" || tpl.Tasks[2].OrderIndex != 2 {
		t.Fatalf("template tasks = %+v", tpl.Tasks)
	}
	if tpl.Version != templates.DefaultVersion {
		t.Errorf("Version = %q, want %q", tpl.Version, templates.DefaultVersion)
	}

	inst, err := f.engine.ApplyTemplate(ctx, tpl.ID, templates.ApplyOptions{ListName: "Launch v2"})
	if err != nil {
		t.Fatalf("ApplyTemplate() failed: %v", err)
	}

	original, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{ListID: &src.ID, OldestFirst: true})
	if err != nil {
		t.Fatalf("ListTasks(original) failed: %v", err)
	}
	copied, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{ListID: &inst.ID, OldestFirst: true})
	if err != nil {
		t.Fatalf("ListTasks(copy) failed: %v", err)
	}
	if diff := cmp.Diff(shapes(original), shapes(copied)); diff != "" {
		t.Errorf("copied tasks mismatch (-original +copy):\n%s", diff)
	}
	for _, c := range copied {
		if c.Status != types.StatusPending || c.CompletedAt != nil {
			t.Errorf("copied task %q status = %s, want pending", c.Title, c.Status)
		}
	}

	if ok, err := f.engine.DeleteTemplate(ctx, tpl.ID); err != nil || !ok {
		t.Fatalf("DeleteTemplate() = %v, %v", ok, err)
	}
	if _, err := f.lists.GetList(ctx, inst.ID); err != nil {
		t.Errorf("instance must survive template deletion: %v", err)
	}
	if _, err := f.engine.ApplyTemplate(ctx, tpl.ID, templates.ApplyOptions{ListName: "again"}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("ApplyTemplate(deleted) error = %v, want not found", err)
	}
	if ok, _ := f.engine.DeleteTemplate(ctx, tpl.ID); ok {
		t.Error("DeleteTemplate(already deleted) = true, want false")
	}
}

// TestApplyTemplate_Placeholders tests substitution and verbatim unmatched tokens
func TestApplyTemplate_Placeholders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.engine.CreateTemplate(ctx, templates.TemplateInput{
		Name: "Release",
		Tasks: []types.TemplateTask{
			{Title: "Tag {{ version }}", Description: "for {{customer}} by {{ owner }}"},
		},
	})
	if err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}

	inst, err := f.engine.ApplyTemplate(ctx, tpl.ID, templates.ApplyOptions{
		ListName: "Release 2.1",
		Params:   map[string]string{"version": "v2.1.0", "customer": "Acme"},
	})
	if err != nil {
		t.Fatalf("ApplyTemplate() failed: %v", err)
	}
	got, err := f.tasks.ListTasks(ctx, tasks.TaskQuery{ListID: &inst.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("ListTasks() = %v, %v", got, err)
	}
	if got[0].Title != "Tag v2.1.0" || got[0].Description != "for Acme by {{ owner }}" {
		t.Errorf("substituted task = %q / %q", got[0].Title, got[0].Description)
	}
}

// TestApplyTemplate_ListValidation tests that instantiation reuses list validation atomically
func TestApplyTemplate_ListValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.engine.CreateTemplate(ctx, templates.TemplateInput{Name: "T", Tasks: []types.TemplateTask{{Title: "a"}}})
	if err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}
	if _, err := f.engine.ApplyTemplate(ctx, tpl.ID, templates.ApplyOptions{ListName: ""}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("ApplyTemplate(empty name) error = %v, want validation", err)
	}
	if _, err := f.engine.ApplyTemplate(ctx, tpl.ID, templates.ApplyOptions{ListName: "x", ParentID: ptr(int64(99))}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("ApplyTemplate(missing parent) error = %v, want not found", err)
	}
	all, err := f.lists.ListAll(ctx, false)
	if err != nil {
		t.Fatalf("ListAll() failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("failed applies left %d lists behind", len(all))
	}
	if _, err := f.engine.CreateTemplateFromList(ctx, 404, "x", "", ""); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("CreateTemplateFromList(missing) error = %v, want not found", err)
	}
}

// TestAddTemplateTask_AppendsInOrder tests supplementary template editing
func TestAddTemplateTask_AppendsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tpl, err := f.engine.CreateTemplate(ctx, templates.TemplateInput{Name: "Weekly", Category: "ops", Version: "2.0"})
	if err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}
	if tpl.Version != "v2.0.0" {
		t.Errorf("Version = %q, want v2.0.0", tpl.Version)
	}
	for _, title := range []string{"first", "second"} {
		if _, err := f.engine.AddTemplateTask(ctx, tpl.ID, types.TemplateTask{Title: title}); err != nil {
			t.Fatalf("AddTemplateTask(%q) failed: %v", title, err)
		}
	}
	got, err := f.engine.GetTemplate(ctx, tpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate() failed: %v", err)
	}
	if len(got.Tasks) != 2 || got.Tasks[1].Title != "second" || got.Tasks[1].OrderIndex != 1 {
		t.Errorf("tasks = %+v", got.Tasks)
	}

	listed, err := f.engine.ListTemplates(ctx, "ops")
	if err != nil || len(listed) != 1 {
		t.Errorf("ListTemplates(ops) = %v, %v", listed, err)
	}
	if none, _ := f.engine.ListTemplates(ctx, "other"); len(none) != 0 {
		t.Errorf("ListTemplates(other) = %v, want none", none)
	}
	if _, err := f.engine.AddTemplateTask(ctx, 404, types.TemplateTask{Title: "x"}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("AddTemplateTask(missing) error = %v, want not found", err)
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "v1.0.0"},
		{in: "1.2.3", want: "v1.2.3"},
		{in: "v2", want: "v2.0.0"},
		{in: "v1.4", want: "v1.4.0"},
		{in: "latest", wantErr: true},
	}
	for _, tt := range tests {
		got, err := templates.NormalizeVersion(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeVersion(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstitute(t *testing.T) {
	params := map[string]string{"a": "1", "b.c": "2"}
	tests := []struct {
		in, want string
	}{
		{in: "{{a}}-{{ b.c }}", want: "1-2"},
		{in: "{{ missing }} stays", want: "{{ missing }} stays"},
		{in: "no tokens", want: "no tokens"},
		{in: "{{ a b }}", want: "{{ a b }}"},
	}
	for _, tt := range tests {
		if got := templates.Substitute(tt.in, params); got != tt.want {
			t.Errorf("Substitute(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if diff := cmp.Diff([]string{"a", "owner"}, templates.Placeholders("{{owner}} {{a}}", "{{ a }}")); diff != "" {
		t.Errorf("Placeholders() mismatch (-want +got):\n%s", diff)
	}
}
