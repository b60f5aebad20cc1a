package templates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tasklattice/tasklattice/internal/types"
)

// File is the on-disk form of a template.
//
// Example (TOML):
//
//	name = "Release checklist"
//	category = "ops"
//	version = "1.2.0"
//
//	[[tasks]]
//	title = "Tag {{ version }}"
//	priority = "high"
//	estimated_hours = 0.5
type File struct {
	Name        string     `toml:"name" yaml:"name" json:"name"`
	Description string     `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	Category    string     `toml:"category,omitempty" yaml:"category,omitempty" json:"category,omitempty"`
	Version     string     `toml:"version,omitempty" yaml:"version,omitempty" json:"version,omitempty"`
	Tasks       []FileTask `toml:"tasks" yaml:"tasks" json:"tasks"`
}

// FileTask is one task of a template file.
type FileTask struct {
	Title          string   `toml:"title" yaml:"title" json:"title"`
	Description    string   `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	Priority       string   `toml:"priority,omitempty" yaml:"priority,omitempty" json:"priority,omitempty"`
	EstimatedHours *float64 `toml:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty" json:"estimated_hours,omitempty"`
}

// Format names a template file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", types.Validationf("template file %s must end in .toml, .yaml, .yml or .json", filepath.Base(path))
}

// LoadFile reads and decodes a template file.
func LoadFile(path string) (*File, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	f, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f, nil
}

// Decode parses a template document. Unknown keys are rejected.
func Decode(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, types.Validationf("invalid TOML: %v", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, types.Validationf("unknown template keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, types.Validationf("invalid YAML: %v", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, types.Validationf("invalid JSON: %v", err)
		}
	default:
		return nil, types.Validationf("unknown template format %q", format)
	}
	return &f, nil
}

// Encode renders a template document.
func Encode(f *File, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return nil, fmt.Errorf("failed to encode TOML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
		return append(data, '\n'), nil
	}
	return nil, types.Validationf("unknown template format %q", format)
}

// Input converts the file into engine input, parsing priorities.
func (f *File) Input() (TemplateInput, error) {
	in := TemplateInput{Name: f.Name, Description: f.Description, Category: f.Category, Version: f.Version}
	for i, t := range f.Tasks {
		p, err := types.ParsePriority(t.Priority)
		if err != nil {
			return TemplateInput{}, fmt.Errorf("task %d: %w", i, err)
		}
		in.Tasks = append(in.Tasks, types.TemplateTask{
			Title:          t.Title,
			Description:    t.Description,
			Priority:       p,
			EstimatedHours: t.EstimatedHours,
		})
	}
	return in, nil
}

// FromTemplate converts a stored template into its file form.
func FromTemplate(t *types.Template) *File {
	f := &File{Name: t.Name, Description: t.Description, Category: t.Category, Version: t.Version, Tasks: []FileTask{}}
	for _, tt := range t.Tasks {
		f.Tasks = append(f.Tasks, FileTask{
			Title:          tt.Title,
			Description:    tt.Description,
			Priority:       string(tt.Priority),
			EstimatedHours: tt.EstimatedHours,
		})
	}
	return f
}

// ImportFile loads a template file and stores it, replacing live templates
// of the same name.
func (e *Engine) ImportFile(ctx context.Context, path string) (*types.Template, error) {
	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	in, err := f.Input()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	tpl, replaced, err := e.ReplaceTemplate(ctx, in)
	if err != nil {
		return nil, err
	}
	e.log.WithField("op", "import_template").WithField("path", path).WithField("template_id", tpl.ID).
		WithField("replaced", replaced).Info("template imported")
	return tpl, nil
}

// ExportFile writes a stored template to path in the format its extension
// names.
func (e *Engine) ExportFile(ctx context.Context, id int64, path string) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	tpl, err := e.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	data, err := Encode(FromTemplate(tpl), format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}
	return nil
}
