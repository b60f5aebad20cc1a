package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTask_Validate(t *testing.T) {
	neg := -1.5

	tests := []struct {
		name    string
		task    Task
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid task",
			task:    Task{Title: "Buy milk", Status: StatusPending, Priority: PriorityNormal},
			wantErr: false,
		},
		{
			name:    "missing title",
			task:    Task{Status: StatusPending, Priority: PriorityNormal},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "whitespace title",
			task:    Task{Title: "   ", Status: StatusPending, Priority: PriorityNormal},
			wantErr: true,
			errMsg:  "title is required",
		},
		{
			name:    "title too long",
			task:    Task{Title: strings.Repeat("x", 501), Status: StatusPending, Priority: PriorityNormal},
			wantErr: true,
			errMsg:  "title must be 500 characters or less",
		},
		{
			name:    "invalid status",
			task:    Task{Title: "Test", Status: "open", Priority: PriorityNormal},
			wantErr: true,
			errMsg:  "status",
		},
		{
			name:    "invalid priority",
			task:    Task{Title: "Test", Status: StatusPending, Priority: "urgent"},
			wantErr: true,
			errMsg:  "priority",
		},
		{
			name:    "negative estimate",
			task:    Task{Title: "Test", Status: StatusPending, Priority: PriorityNormal, EstimatedHours: &neg},
			wantErr: true,
			errMsg:  "estimated_hours must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.errMsg)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Validate() error kind = %q, want validation", KindOf(err))
			}
		})
	}
}

func TestTaskList_ValidateNameBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		list    TaskList
		wantErr bool
	}{
		{"empty", TaskList{Name: ""}, true},
		{"exactly 200", TaskList{Name: strings.Repeat("a", 200)}, false},
		{"201 chars", TaskList{Name: strings.Repeat("a", 201)}, true},
		{"multibyte 200 runes", TaskList{Name: strings.Repeat("é", 200)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.list.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTaskList_ValidateSelfParent(t *testing.T) {
	id := int64(7)
	l := TaskList{ID: 7, Name: "loop", ParentID: &id}
	if err := l.Validate(); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Validate() error = %v, want integrity", err)
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{"InProgress", StatusInProgress, false},
		{"in-progress", StatusInProgress, false},
		{"Completed", StatusCompleted, false},
		{"canceled", StatusCancelled, false},
		{"Blocked", StatusBlocked, false},
		{"later", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsCanonicalTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusPending, true},
		{StatusBlocked, StatusInProgress, true},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCompleted, true},
	}
	for _, tt := range tests {
		if got := IsCanonicalTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsCanonicalTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPriorityRank(t *testing.T) {
	order := []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Errorf("Rank(%s) >= Rank(%s)", order[i-1], order[i])
		}
	}
	if p, err := ParsePriority(""); err != nil || p != PriorityNormal {
		t.Errorf("ParsePriority(\"\") = %q, %v; want normal", p, err)
	}
}

func TestTag_ValidateColor(t *testing.T) {
	if err := (&Tag{Name: "urgent", Color: "#ff0000"}).Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
	if err := (&Tag{Name: "urgent", Color: "red"}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate() error = %v, want validation", err)
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		kind     Kind
	}{
		{Validationf("bad"), ErrValidation, KindValidation},
		{NotFound("task", 3), ErrNotFound, KindNotFound},
		{Conflictf("dup"), ErrConflict, KindConflict},
		{Deleted("list", 2), ErrNotFound, KindNotFound},
		{Integrityf("cycle"), ErrIntegrity, KindIntegrity},
		{Transient(errors.New("database is locked")), ErrTransient, KindTransient},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("outer: %w", tt.err)
		if !errors.Is(wrapped, tt.sentinel) {
			t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
		}
		if got := KindOf(wrapped); got != tt.kind {
			t.Errorf("KindOf(%v) = %q, want %q", wrapped, got, tt.kind)
		}
	}

	if NotFound("task", 3).Error() != "task 3 not found" {
		t.Errorf("NotFound message = %q", NotFound("task", 3).Error())
	}
	if got := Deleted("list", 2).Error(); got != "list 2 is deleted" {
		t.Errorf("Deleted message = %q", got)
	}
	if got := MessageOf(fmt.Errorf("outer: %w", Conflictf("dup"))); got != "dup" {
		t.Errorf("MessageOf(wrapped) = %q, want %q", got, "dup")
	}
	if got := MessageOf(errors.New("plain")); got != "plain" {
		t.Errorf("MessageOf(plain) = %q, want %q", got, "plain")
	}
	if !IsRetryable(Transient(errors.New("busy"))) {
		t.Error("IsRetryable(transient) = false")
	}
	if IsRetryable(Validationf("x")) {
		t.Error("IsRetryable(validation) = true")
	}
}
