package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tasklattice/tasklattice/internal/dates"
	"github.com/tasklattice/tasklattice/internal/types"
)

// args reads flat tool parameters. JSON numbers arrive as float64; ids
// must be whole numbers. A null value counts as absent.
type args struct {
	m     map[string]any
	dates *dates.Parser
}

func (a args) has(key string) bool {
	v, ok := a.m[key]
	return ok && v != nil
}

func (a args) str(key string) (string, error) {
	if !a.has(key) {
		return "", nil
	}
	s, ok := a.m[key].(string)
	if !ok {
		return "", types.Validationf("%s must be a string", key)
	}
	return s, nil
}

func (a args) requireStr(key string) (string, error) {
	if !a.has(key) {
		return "", types.Validationf("%s is required", key)
	}
	return a.str(key)
}

func (a args) optStr(key string) (*string, error) {
	if !a.has(key) {
		return nil, nil
	}
	s, err := a.str(key)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (a args) number(key string) (float64, bool, error) {
	if !a.has(key) {
		return 0, false, nil
	}
	switch v := a.m[key].(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false, types.Validationf("%s must be a number", key)
		}
		return f, true, nil
	}
	return 0, false, types.Validationf("%s must be a number", key)
}

func (a args) optFloat(key string) (*float64, error) {
	f, ok, err := a.number(key)
	if err != nil || !ok {
		return nil, err
	}
	return &f, nil
}

func (a args) optInt(key string) (*int64, error) {
	f, ok, err := a.number(key)
	if err != nil || !ok {
		return nil, err
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return nil, types.Validationf("%s must be a whole number", key)
	}
	n := int64(f)
	return &n, nil
}

func (a args) id(key string) (int64, error) {
	n, err := a.optInt(key)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return 0, types.Validationf("%s is required", key)
	}
	if *n <= 0 {
		return 0, types.Validationf("%s must be positive", key)
	}
	return *n, nil
}

func (a args) optID(key string) (*int64, error) {
	if !a.has(key) {
		return nil, nil
	}
	n, err := a.id(key)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (a args) limit(key string, def int) (int, error) {
	n, err := a.optInt(key)
	if err != nil {
		return 0, err
	}
	if n == nil {
		return def, nil
	}
	if *n < 0 {
		return 0, types.Validationf("%s must not be negative", key)
	}
	return int(*n), nil
}

func (a args) boolean(key string) (bool, error) {
	if !a.has(key) {
		return false, nil
	}
	b, ok := a.m[key].(bool)
	if !ok {
		return false, types.Validationf("%s must be a boolean", key)
	}
	return b, nil
}

// strs accepts an array of strings or a single comma-separated string.
func (a args) strs(key string) ([]string, error) {
	if !a.has(key) {
		return nil, nil
	}
	switch v := a.m[key].(type) {
	case string:
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, types.Validationf("%s[%d] must be a string", key, i)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, types.Validationf("%s must be an array of strings", key)
}

func (a args) ids(key string) ([]int64, error) {
	if !a.has(key) {
		return nil, nil
	}
	raw, ok := a.m[key].([]any)
	if !ok {
		return nil, types.Validationf("%s must be an array of ids", key)
	}
	out := make([]int64, 0, len(raw))
	for i, item := range raw {
		n, err := (args{m: map[string]any{"v": item}}).id("v")
		if err != nil {
			return nil, types.Validationf("%s[%d] must be a positive whole number", key, i)
		}
		out = append(out, n)
	}
	return out, nil
}

// strMap accepts an object whose values are strings, numbers or booleans.
func (a args) strMap(key string) (map[string]string, error) {
	if !a.has(key) {
		return nil, nil
	}
	raw, ok := a.m[key].(map[string]any)
	if !ok {
		return nil, types.Validationf("%s must be an object", key)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			out[k] = v
		case float64, bool:
			out[k] = fmt.Sprint(v)
		default:
			return nil, types.Validationf("%s.%s must be a string", key, k)
		}
	}
	return out, nil
}

// rawJSON returns an object, array or JSON-encoded string parameter as raw
// JSON.
func (a args) rawJSON(key string) (json.RawMessage, error) {
	if !a.has(key) {
		return nil, nil
	}
	if s, ok := a.m[key].(string); ok {
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(a.m[key])
	if err != nil {
		return nil, types.Validationf("%s is not valid JSON", key)
	}
	return data, nil
}

func (a args) time(key string) (*time.Time, error) {
	s, err := a.str(key)
	if err != nil {
		return nil, err
	}
	t, err := a.dates.ParseOptional(s)
	if err != nil {
		return nil, types.Validationf("%s: %s", key, types.MessageOf(err))
	}
	return t, nil
}

func (a args) status(key string) (*types.Status, error) {
	s, err := a.str(key)
	if err != nil || s == "" {
		return nil, err
	}
	st, err := types.ParseStatus(s)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (a args) priority(key string) (*types.Priority, error) {
	s, err := a.str(key)
	if err != nil || s == "" {
		return nil, err
	}
	p, err := types.ParsePriority(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
