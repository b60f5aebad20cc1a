package types

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Tag is a node in the tag forest. Names are unique ignoring case.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Depth     int       `json:"depth"`
	Path      []string  `json:"path,omitempty"`
}

// Validate checks if the Tag has valid field values.
func (t *Tag) Validate() error {
	if err := ValidateName("name", t.Name, MaxTagNameLength); err != nil {
		return err
	}
	if t.Color != "" && !colorPattern.MatchString(t.Color) {
		return Validationf("color %q must be in #RRGGBB form", t.Color)
	}
	return nil
}

// TagUsage counts live associations of a tag.
type TagUsage struct {
	Tag   Tag `json:"tag"`
	Count int `json:"count"`
}

// AttributeType is the declared type of a custom attribute.
type AttributeType string

const (
	AttrText           AttributeType = "text"
	AttrInteger        AttributeType = "integer"
	AttrDecimal        AttributeType = "decimal"
	AttrDate           AttributeType = "date"
	AttrDateTime       AttributeType = "datetime"
	AttrBoolean        AttributeType = "boolean"
	AttrSingleChoice   AttributeType = "single_choice"
	AttrMultipleChoice AttributeType = "multiple_choice"
	AttrURL            AttributeType = "url"
	AttrFileReference  AttributeType = "file_reference"
)

// IsValid reports whether t is a known attribute type.
func (t AttributeType) IsValid() bool {
	switch t {
	case AttrText, AttrInteger, AttrDecimal, AttrDate, AttrDateTime, AttrBoolean,
		AttrSingleChoice, AttrMultipleChoice, AttrURL, AttrFileReference:
		return true
	}
	return false
}

// ParseAttributeType accepts snake_case or CamelCase names.
func ParseAttributeType(s string) (AttributeType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "singlechoice":
		norm = string(AttrSingleChoice)
	case "multiplechoice":
		norm = string(AttrMultipleChoice)
	case "filereference":
		norm = string(AttrFileReference)
	case "date_time":
		norm = string(AttrDateTime)
	}
	t := AttributeType(norm)
	if !t.IsValid() {
		return "", Validationf("attribute type %q is unknown", s)
	}
	return t, nil
}

// AttributeDefinition declares a typed custom attribute.
type AttributeDefinition struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Type            AttributeType   `json:"type"`
	IsRequired      bool            `json:"is_required"`
	DefaultValue    string          `json:"default_value,omitempty"`
	ValidationRules json.RawMessage `json:"validation_rules,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AttributeValue is a stored value of an attribute on a task or list.
type AttributeValue struct {
	EntityID     int64         `json:"entity_id"`
	DefinitionID int64         `json:"attribute_definition_id"`
	Name         string        `json:"name"`
	Type         AttributeType `json:"type"`
	Value        string        `json:"value"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
