package search

import (
	"strings"
	"time"

	"github.com/tasklattice/tasklattice/internal/types"
)

// SortField selects the ordering of search results.
type SortField string

const (
	SortCreated   SortField = "created"
	SortDue       SortField = "due"
	SortPriority  SortField = "priority"
	SortTitle     SortField = "title"
	SortUpdated   SortField = "updated"
	SortRelevance SortField = "relevance"
)

// ParseSort accepts a sort field name. Empty means relevance.
func ParseSort(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SortRelevance, nil
	case SortCreated, SortDue, SortPriority, SortTitle, SortUpdated, SortRelevance:
		return f, nil
	case "created_date", "createddate":
		return SortCreated, nil
	case "due_date", "duedate":
		return SortDue, nil
	case "updated_date", "updateddate":
		return SortUpdated, nil
	}
	return "", types.Validationf("sort field %q is unknown", s)
}

// Direction orders results ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts asc or desc. Empty means desc.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Desc, nil
	case Asc, Desc:
		return d, nil
	case "ascending":
		return Asc, nil
	case "descending":
		return Desc, nil
	}
	return "", types.Validationf("sort direction %q must be asc or desc", s)
}

// Range bounds a timestamp. After is inclusive and Before is exclusive.
type Range struct {
	After  *time.Time
	Before *time.Time
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.After == nil && r.Before == nil
}

// AttributeFilter matches entities whose attribute Name holds a value
// containing Value. An empty Value matches any stored value.
type AttributeFilter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SearchFilter selects tasks. Every populated group must match; values
// within the text and tag groups are alternatives.
type SearchFilter struct {
	Text       string
	Statuses   []types.Status
	Priorities []types.Priority
	ListIDs    []int64
	Tags       []string
	Attributes []AttributeFilter

	Due       Range
	Created   Range
	Completed Range

	// Completed and cancelled tasks are excluded unless included here or
	// named in Statuses.
	IncludeCompleted bool
	IncludeCancelled bool

	SortBy  SortField
	SortDir Direction

	// Limit caps the result count. Zero means no limit.
	Limit int
}

// ListSearchFilter selects lists.
type ListSearchFilter struct {
	Text       string
	ParentID   *int64
	RootsOnly  bool
	Tags       []string
	Attributes []AttributeFilter

	Created Range
	Updated Range

	SortBy  SortField
	SortDir Direction
	Limit   int
}

func validateCommon(sortBy SortField, dir Direction, limit int, attrs []AttributeFilter) error {
	if limit < 0 {
		return types.Validationf("limit must not be negative")
	}
	if _, err := ParseSort(string(sortBy)); err != nil {
		return err
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}
	for i, a := range attrs {
		if strings.TrimSpace(a.Name) == "" {
			return types.Validationf("attribute filter %d has no name", i)
		}
	}
	return nil
}

func (f *SearchFilter) validate() error {
	if err := validateCommon(f.SortBy, f.SortDir, f.Limit, f.Attributes); err != nil {
		return err
	}
	for _, s := range f.Statuses {
		if !s.IsValid() {
			return types.Validationf("status %q is invalid", s)
		}
	}
	for _, p := range f.Priorities {
		if !p.IsValid() {
			return types.Validationf("priority %q is invalid", p)
		}
	}
	return nil
}

func (f *ListSearchFilter) validate() error {
	if err := validateCommon(f.SortBy, f.SortDir, f.Limit, f.Attributes); err != nil {
		return err
	}
	switch sort, _ := ParseSort(string(f.SortBy)); sort {
	case SortDue, SortPriority:
		return types.Validationf("lists cannot be sorted by %s", sort)
	}
	if f.ParentID != nil && f.RootsOnly {
		return types.Validationf("parent_id and roots_only are exclusive")
	}
	return nil
}
