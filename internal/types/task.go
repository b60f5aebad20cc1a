// Package types defines the domain entities shared by every tasklattice component.
package types

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced at write time.
const (
	MaxTaskTitleLength     = 500
	MaxListNameLength      = 200
	MaxTemplateNameLength  = 200
	MaxTagNameLength       = 100
	MaxAttributeNameLength = 100
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusBlocked    Status = "blocked"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusBlocked:
		return true
	}
	return false
}

// IsTerminal reports whether s ends the normal lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// canonicalTransitions holds the lifecycle edges. Any other change is an
// explicit status-setting call, which is allowed but logged as a reopen.
var canonicalTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCancelled, StatusBlocked},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusBlocked, StatusPending},
	StatusBlocked:    {StatusInProgress, StatusPending, StatusCancelled},
}

// IsCanonicalTransition reports whether from -> to follows the lifecycle graph.
func IsCanonicalTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range canonicalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus accepts the canonical form plus common spellings
// ("InProgress", "in-progress", "done").
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "pending", "todo", "open":
		return StatusPending, nil
	case "in_progress", "inprogress", "active", "started":
		return StatusInProgress, nil
	case "completed", "complete", "done":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	case "blocked":
		return StatusBlocked, nil
	}
	return "", Validationf("status %q is not one of pending, in_progress, completed, cancelled, blocked", s)
}

// Priority orders tasks for sorting.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityNormal, PriorityLow, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the sort weight: low < normal < high < critical.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	}
	return 1
}

// ParsePriority parses a priority name; empty means normal.
func ParsePriority(s string) (Priority, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm == "" {
		return PriorityNormal, nil
	}
	p := Priority(norm)
	if !p.IsValid() {
		return "", Validationf("priority %q is not one of normal, low, high, critical", s)
	}
	return p, nil
}

// Task is a unit of work owned by at most one list.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	ListID         *int64     `json:"list_id,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if err := ValidateName("title", t.Title, MaxTaskTitleLength); err != nil {
		return err
	}
	if !t.Status.IsValid() {
		return Validationf("status %q is invalid", t.Status)
	}
	if !t.Priority.IsValid() {
		return Validationf("priority %q is invalid", t.Priority)
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return Validationf("estimated_hours must not be negative (got %g)", *t.EstimatedHours)
	}
	return nil
}

// IsDeleted reports whether the task has been soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// ValidateName checks a required, length-limited name field.
// The value is measured after trimming surrounding whitespace.
func ValidateName(field, value string, max int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Validationf("%s is required", field)
	}
	if n := utf8.RuneCountInString(trimmed); n > max {
		return Validationf("%s must be %d characters or less (got %d)", field, max, n)
	}
	return nil
}
