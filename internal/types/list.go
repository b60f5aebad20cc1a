package types

import "time"

// TaskList is a node in the list forest.
//
// Depth, Path and Children are derived when listing and are never stored.
type TaskList struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	ParentID    *int64      `json:"parent_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	DeletedAt   *time.Time  `json:"deleted_at,omitempty"`
	Depth       int         `json:"depth"`
	Path        []string    `json:"path,omitempty"`
	Children    []*TaskList `json:"children,omitempty"`
}

// Validate checks if the TaskList has valid field values.
func (l *TaskList) Validate() error {
	if err := ValidateName("name", l.Name, MaxListNameLength); err != nil {
		return err
	}
	if l.ParentID != nil && l.ID != 0 && *l.ParentID == l.ID {
		return Integrityf("list %d cannot be its own parent", l.ID)
	}
	return nil
}

// IsDeleted reports whether the list has been soft-deleted.
func (l *TaskList) IsDeleted() bool {
	return l.DeletedAt != nil
}

// Template is a reusable, state-free blueprint for a list of tasks.
type Template struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	Version     string         `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
	Tasks       []TemplateTask `json:"tasks"`
}

// TemplateTask carries only structural fields; status and dates are
// dropped when a template is derived from a list.
type TemplateTask struct {
	ID             int64    `json:"id"`
	TemplateID     int64    `json:"template_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	OrderIndex     int      `json:"order_index"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	Priority       Priority `json:"priority"`
}

// Validate checks if the TemplateTask has valid field values.
func (tt *TemplateTask) Validate() error {
	if err := ValidateName("title", tt.Title, MaxTaskTitleLength); err != nil {
		return err
	}
	if !tt.Priority.IsValid() {
		return Validationf("priority %q is invalid", tt.Priority)
	}
	if tt.EstimatedHours != nil && *tt.EstimatedHours < 0 {
		return Validationf("estimated_hours must not be negative (got %g)", *tt.EstimatedHours)
	}
	return nil
}
