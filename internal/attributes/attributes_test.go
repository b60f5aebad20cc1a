package attributes_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tasklattice/tasklattice/internal/attributes"
	"github.com/tasklattice/tasklattice/internal/lists"
	"github.com/tasklattice/tasklattice/internal/tasks"
	"github.com/tasklattice/tasklattice/internal/testutil"
	"github.com/tasklattice/tasklattice/internal/types"
)

type fixture struct {
	attrs *attributes.Manager
	tasks *tasks.Manager
	lists *lists.Manager
	list  *types.TaskList
	task  *types.Task
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewStore(t)
	log, _ := testutil.NewLogger()
	tm := tasks.NewManager(store, log, nil)
	f := &fixture{
		attrs: attributes.NewManager(store, log, nil),
		tasks: tm,
		lists: lists.NewManager(store, tm, log, nil),
	}
	var err error
	if f.list, err = f.lists.CreateList(ctx, lists.ListInput{Name: "Bugs"}); err != nil {
		t.Fatalf("CreateList() failed: %v", err)
	}
	if f.task, err = f.tasks.CreateTask(ctx, tasks.TaskInput{Title: "Crash on save", ListID: &f.list.ID}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	return f
}

func (f *fixture) define(t *testing.T, in attributes.DefinitionInput) *types.AttributeDefinition {
	t.Helper()
	d, err := f.attrs.CreateAttributeDefinition(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateAttributeDefinition(%q) failed: %v", in.Name, err)
	}
	return d
}

// TestSeverityScenario tests a required integer attribute end to end
func TestSeverityScenario(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	sev := f.define(t, attributes.DefinitionInput{Name: "Severity", Type: types.AttrInteger, IsRequired: true})

	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, sev.ID, "abc"); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("SetTaskAttribute(abc) error = %v, want validation", err)
	}
	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, sev.ID, ""); !errors.Is(err, types.ErrValidation) {
		t.Fatalf("SetTaskAttribute(empty) error = %v, want validation", err)
	}
	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, sev.ID, "3"); err != nil {
		t.Fatalf("SetTaskAttribute(3) failed: %v", err)
	}

	vals, err := f.attrs.GetTaskAttributes(ctx, f.task.ID)
	if err != nil {
		t.Fatalf("GetTaskAttributes() failed: %v", err)
	}
	if len(vals) != 1 || vals[0].Value != "3" || vals[0].Name != "Severity" {
		t.Fatalf("GetTaskAttributes() = %+v, want Severity=3", vals)
	}

	updated, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, sev.ID, "4")
	if err != nil {
		t.Fatalf("SetTaskAttribute(4) failed: %v", err)
	}
	if updated.Value != "4" || !updated.CreatedAt.Equal(vals[0].CreatedAt) {
		t.Errorf("upsert = %+v, want value 4 and the original created_at", updated)
	}
	if updated.UpdatedAt.Before(vals[0].UpdatedAt) {
		t.Errorf("UpdatedAt moved backwards")
	}
}

// TestCreateAttributeDefinition tests definition validation
func TestCreateAttributeDefinition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.define(t, attributes.DefinitionInput{Name: "Owner", Type: types.AttrText})

	tests := []struct {
		name    string
		input   attributes.DefinitionInput
		wantErr error
	}{
		{name: "duplicate ignoring case", input: attributes.DefinitionInput{Name: "owner", Type: types.AttrText}, wantErr: types.ErrConflict},
		{name: "unknown type", input: attributes.DefinitionInput{Name: "x", Type: "money"}, wantErr: types.ErrValidation},
		{name: "empty name", input: attributes.DefinitionInput{Name: "", Type: types.AttrText}, wantErr: types.ErrValidation},
		{name: "unknown rule key", input: attributes.DefinitionInput{Name: "x", Type: types.AttrText, ValidationRules: json.RawMessage(`{"maxLen":3}`)}, wantErr: types.ErrValidation},
		{name: "rules not json", input: attributes.DefinitionInput{Name: "x", Type: types.AttrInteger, ValidationRules: json.RawMessage(`{min:1`)}, wantErr: types.ErrValidation},
		{name: "choices missing", input: attributes.DefinitionInput{Name: "x", Type: types.AttrSingleChoice}, wantErr: types.ErrValidation},
		{name: "default fails rules", input: attributes.DefinitionInput{Name: "x", Type: types.AttrInteger, DefaultValue: "11", ValidationRules: json.RawMessage(`{"min":1,"max":10}`)}, wantErr: types.ErrValidation},
		{name: "inverted range", input: attributes.DefinitionInput{Name: "x", Type: types.AttrDate, ValidationRules: json.RawMessage(`{"min":"2025-02-01","max":"2025-01-01"}`)}, wantErr: types.ErrValidation},
		{name: "choice with default", input: attributes.DefinitionInput{Name: "Env", Type: types.AttrSingleChoice, DefaultValue: "dev", ValidationRules: json.RawMessage(`{"choices":["dev","prod"]}`)}},
		{name: "empty object rules", input: attributes.DefinitionInput{Name: "Flag", Type: types.AttrBoolean, ValidationRules: json.RawMessage(`{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.attrs.CreateAttributeDefinition(ctx, tt.input)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CreateAttributeDefinition() failed: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateAttributeDefinition() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestSetAttribute_DefaultsAndEntities tests defaulting and entity checks
func TestSetAttribute_DefaultsAndEntities(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	env := f.define(t, attributes.DefinitionInput{Name: "Env", Type: types.AttrSingleChoice, DefaultValue: "dev",
		ValidationRules: json.RawMessage(`{"choices":["dev","prod"]}`)})
	note := f.define(t, attributes.DefinitionInput{Name: "Note", Type: types.AttrText})

	v, err := f.attrs.SetListAttribute(ctx, f.list.ID, env.ID, "")
	if err != nil {
		t.Fatalf("SetListAttribute(default) failed: %v", err)
	}
	if v.Value != "dev" {
		t.Errorf("defaulted value = %q, want dev", v.Value)
	}

	level := f.define(t, attributes.DefinitionInput{Name: "Level", Type: types.AttrInteger, IsRequired: true, DefaultValue: "1"})
	for _, empty := range []string{"", "  "} {
		if v, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, level.ID, empty); !errors.Is(err, types.ErrValidation) {
			t.Errorf("SetTaskAttribute(required with default, %q) = %v, %v, want validation", empty, v, err)
		}
	}
	if vals, _ := f.attrs.GetTaskAttributes(ctx, f.task.ID); len(vals) != 0 {
		t.Errorf("values after rejected required = %+v, want none", vals)
	}

	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, note.ID, "hello"); err != nil {
		t.Fatalf("SetTaskAttribute(note) failed: %v", err)
	}
	if v, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, note.ID, " "); err != nil || v != nil {
		t.Fatalf("SetTaskAttribute(clear optional) = %v, %v", v, err)
	}
	if vals, _ := f.attrs.GetTaskAttributes(ctx, f.task.ID); len(vals) != 0 {
		t.Errorf("values after clearing = %d, want 0", len(vals))
	}

	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, 999, "x"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("SetTaskAttribute(missing definition) error = %v, want not found", err)
	}
	if _, err := f.attrs.SetTaskAttribute(ctx, 999, note.ID, "x"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("SetTaskAttribute(missing task) error = %v, want not found", err)
	}
	if _, err := f.tasks.DeleteTask(ctx, f.task.ID); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, note.ID, "x"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("SetTaskAttribute(deleted task) error = %v, want not found", err)
	}
}

// TestDeleteAttributeDefinition tests that values go with the definition
func TestDeleteAttributeDefinition(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.define(t, attributes.DefinitionInput{Name: "Points", Type: types.AttrDecimal})

	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, d.ID, "2.5"); err != nil {
		t.Fatalf("SetTaskAttribute() failed: %v", err)
	}
	if _, err := f.attrs.SetListAttribute(ctx, f.list.ID, d.ID, "8"); err != nil {
		t.Fatalf("SetListAttribute() failed: %v", err)
	}

	ok, err := f.attrs.DeleteAttributeDefinition(ctx, d.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteAttributeDefinition() = %v, %v", ok, err)
	}
	if vals, _ := f.attrs.GetTaskAttributes(ctx, f.task.ID); len(vals) != 0 {
		t.Errorf("task values after delete = %d, want 0", len(vals))
	}
	if vals, _ := f.attrs.GetListAttributes(ctx, f.list.ID); len(vals) != 0 {
		t.Errorf("list values after delete = %d, want 0", len(vals))
	}
	if ok, err := f.attrs.DeleteAttributeDefinition(ctx, d.ID); err != nil || ok {
		t.Errorf("DeleteAttributeDefinition(again) = %v, %v, want false", ok, err)
	}
	if defs, _ := f.attrs.ListDefinitions(ctx); len(defs) != 0 {
		t.Errorf("ListDefinitions() = %d, want 0", len(defs))
	}
}

func TestRemoveAttribute(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.define(t, attributes.DefinitionInput{Name: "Link", Type: types.AttrURL})

	if _, err := f.attrs.SetTaskAttribute(ctx, f.task.ID, d.ID, "https://example.com/issue/1"); err != nil {
		t.Fatalf("SetTaskAttribute() failed: %v", err)
	}
	if ok, err := f.attrs.RemoveTaskAttribute(ctx, f.task.ID, d.ID); err != nil || !ok {
		t.Errorf("RemoveTaskAttribute() = %v, %v, want true", ok, err)
	}
	if ok, err := f.attrs.RemoveTaskAttribute(ctx, f.task.ID, d.ID); err != nil || ok {
		t.Errorf("RemoveTaskAttribute(again) = %v, %v, want false", ok, err)
	}
	if ok, err := f.attrs.RemoveListAttribute(ctx, f.list.ID, d.ID); err != nil || ok {
		t.Errorf("RemoveListAttribute(none) = %v, %v, want false", ok, err)
	}
}
