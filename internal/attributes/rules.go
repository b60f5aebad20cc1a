package attributes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tasklattice/tasklattice/internal/types"
)

// Value layouts for date attributes.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = time.RFC3339
)

// Validator checks a string-encoded attribute value.
type Validator func(value string) error

type textRules struct {
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

type numberRules struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

type timeRules struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

type choiceRules struct {
	Choices []string `json:"choices"`
}

type fileRules struct {
	Extensions []string `json:"extensions,omitempty"`
}

type urlRules struct {
	Schemes []string `json:"schemes,omitempty"`
}

// NormalizeRules compacts a rules payload. Empty, null and {} all mean no
// rules and normalize to nil.
func NormalizeRules(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, types.Validationf("validation rules are not valid JSON: %v", err)
	}
	if buf.String() == "{}" {
		return nil, nil
	}
	return buf.Bytes(), nil
}

func decodeRules(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.Validationf("malformed validation rules: %v", err)
	}
	return nil
}

// Compile builds the validator for an attribute type and its rules. Unknown
// rule keys, rules of the wrong shape and inverted ranges are rejected.
func Compile(typ types.AttributeType, raw json.RawMessage) (Validator, error) {
	raw, err := NormalizeRules(raw)
	if err != nil {
		return nil, err
	}

	switch typ {
	case types.AttrText:
		var r textRules
		if err := decodeRules(raw, &r); err != nil {
			return nil, err
		}
		if r.MaxLength != nil && *r.MaxLength < 1 {
			return nil, types.Validationf("maxLength must be positive")
		}
		var re *regexp.Regexp
		if r.Pattern != "" {
			if re, err = regexp.Compile(r.Pattern); err != nil {
				return nil, types.Validationf("pattern %q does not compile: %v", r.Pattern, err)
			}
		}
		return func(v string) error {
			if r.MaxLength != nil && utf8.RuneCountInString(v) > *r.MaxLength {
				return types.Validationf("value exceeds %d characters", *r.MaxLength)
			}
			if re != nil && !re.MatchString(v) {
				return types.Validationf("value %q does not match %s", v, r.Pattern)
			}
			return nil
		}, nil

	case types.AttrInteger, types.AttrDecimal:
		var r numberRules
		if err := decodeRules(raw, &r); err != nil {
			return nil, err
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return nil, types.Validationf("min %v is greater than max %v", *r.Min, *r.Max)
		}
		return func(v string) error {
			n, err := parseNumber(typ, v)
			if err != nil {
				return err
			}
			if r.Min != nil && n < *r.Min {
				return types.Validationf("value %s is below the minimum %v", v, *r.Min)
			}
			if r.Max != nil && n > *r.Max {
				return types.Validationf("value %s is above the maximum %v", v, *r.Max)
			}
			return nil
		}, nil

	case types.AttrDate, types.AttrDateTime:
		layout := DateLayout
		if typ == types.AttrDateTime {
			layout = DateTimeLayout
		}
		var r timeRules
		if err := decodeRules(raw, &r); err != nil {
			return nil, err
		}
		parseBound := func(name, s string) (*time.Time, error) {
			if s == "" {
				return nil, nil
			}
			t, err := time.Parse(layout, s)
			if err != nil {
				return nil, types.Validationf("%s %q is not a %s", name, s, typ)
			}
			return &t, nil
		}
		lo, err := parseBound("min", r.Min)
		if err != nil {
			return nil, err
		}
		hi, err := parseBound("max", r.Max)
		if err != nil {
			return nil, err
		}
		if lo != nil && hi != nil && lo.After(*hi) {
			return nil, types.Validationf("min %s is after max %s", r.Min, r.Max)
		}
		return func(v string) error {
			t, err := time.Parse(layout, v)
			if err != nil {
				return types.Validationf("value %q is not a %s (want %s)", v, typ, layout)
			}
			if lo != nil && t.Before(*lo) {
				return types.Validationf("value %s is before %s", v, r.Min)
			}
			if hi != nil && t.After(*hi) {
				return types.Validationf("value %s is after %s", v, r.Max)
			}
			return nil
		}, nil

	case types.AttrBoolean:
		if err := decodeRules(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return func(v string) error {
			if _, err := strconv.ParseBool(v); err != nil {
				return types.Validationf("value %q is not a boolean", v)
			}
			return nil
		}, nil

	case types.AttrSingleChoice, types.AttrMultipleChoice:
		var r choiceRules
		if err := decodeRules(raw, &r); err != nil {
			return nil, err
		}
		allowed := make(map[string]bool, len(r.Choices))
		for _, c := range r.Choices {
			if c = strings.TrimSpace(c); c != "" {
				allowed[c] = true
			}
		}
		if len(allowed) == 0 {
			return nil, types.Validationf("%s attributes require a non-empty choices list", typ)
		}
		return func(v string) error {
			picked := []string{strings.TrimSpace(v)}
			if typ == types.AttrMultipleChoice {
				picked = SplitChoices(v)
			}
			if len(picked) == 0 {
				return types.Validationf("value selects no choices")
			}
			for _, p := range picked {
				if !allowed[p] {
					return types.Validationf("value %q is not one of the allowed choices", p)
				}
			}
			return nil
		}, nil

	case types.AttrURL:
		var r urlRules
		if err := decodeRules(raw, &r); err != nil {
			return nil, err
		}
		schemes := lowerSet(r.Schemes, "")
		return func(v string) error {
			u, err := url.Parse(v)
			if err != nil || !u.IsAbs() || u.Host == "" {
				return types.Validationf("value %q is not an absolute URL", v)
			}
			if len(schemes) > 0 && !schemes[strings.ToLower(u.Scheme)] {
				return types.Validationf("URL scheme %q is not allowed", u.Scheme)
			}
			return nil
		}, nil

	case types.AttrFileReference:
		var r fileRules
		if err := decodeRules(raw, &r); err != nil {
			return nil, err
		}
		exts := lowerSet(r.Extensions, ".")
		return func(v string) error {
			if exts == nil {
				return nil
			}
			if ext := strings.ToLower(filepath.Ext(v)); !exts[ext] {
				return types.Validationf("file %q must have one of the allowed extensions", v)
			}
			return nil
		}, nil
	}
	return nil, types.Validationf("attribute type %q is unknown", typ)
}

// SplitChoices splits a multiple_choice value on commas, dropping blanks.
func SplitChoices(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseNumber(typ types.AttributeType, v string) (float64, error) {
	if typ == types.AttrInteger {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, types.Validationf("value %q is not an integer", v)
		}
		return float64(n), nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, types.Validationf("value %q is not a decimal", v)
	}
	return f, nil
}

// lowerSet lowercases items, adding prefix where it is missing.
func lowerSet(items []string, prefix string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.TrimSpace(it))
		if it == "" {
			continue
		}
		if prefix != "" && !strings.HasPrefix(it, prefix) {
			it = prefix + it
		}
		out[it] = true
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// describe is used in log fields.
func describe(d *types.AttributeDefinition) string {
	return fmt.Sprintf("%s(%s)", d.Name, d.Type)
}
