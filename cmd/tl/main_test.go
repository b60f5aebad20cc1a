package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tasklattice/tasklattice/internal/types"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: types.Validationf("bad"), want: 2},
		{err: fmt.Errorf("wrapped: %w", types.NotFound("task", 7)), want: 3},
		{err: types.Conflictf("tag exists"), want: 4},
		{err: types.Integrityf("cycle"), want: 4},
		{err: types.Transient(errors.New("busy")), want: 75},
		{err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := parseID("task id", "42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, in := range []string{"0", "-3", "abc", ""} {
		if _, err := parseID("task id", in); !errors.Is(err, types.ErrValidation) {
			t.Errorf("parseID(%q) error = %v, want validation", in, err)
		}
	}
}

func TestTargets(t *testing.T) {
	if _, _, err := tagTarget("task", "1"); err != nil {
		t.Errorf("tagTarget(task) failed: %v", err)
	}
	if _, _, err := tagTarget("project", "1"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("tagTarget(project) error = %v, want validation", err)
	}
	if _, _, err := attrTarget("list", "x"); !errors.Is(err, types.ErrValidation) {
		t.Errorf("attrTarget(list, x) error = %v, want validation", err)
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"list", "add"}, {"task", "start"}, {"template", "apply"}, {"tag", "attach"},
		{"attr", "set"}, {"search", "tasks"}, {"export"}, {"import"}, {"serve"}, {"dashboard"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		if err != nil || len(rest) != 0 || cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %v, %v, %v", path, cmd.Name(), rest, err)
		}
	}
}
