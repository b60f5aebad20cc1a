package attributes

import (
	"encoding/json"
	"testing"

	"github.com/tasklattice/tasklattice/internal/types"
)

func TestCompile_Values(t *testing.T) {
	tests := []struct {
		name  string
		typ   types.AttributeType
		rules string
		value string
		ok    bool
	}{
		{"integer", types.AttrInteger, "", "42", true},
		{"integer rejects decimal", types.AttrInteger, "", "4.2", false},
		{"integer below min", types.AttrInteger, `{"min":1}`, "0", false},
		{"integer at max", types.AttrInteger, `{"min":1,"max":5}`, "5", true},
		{"decimal", types.AttrDecimal, "", "-0.75", true},
		{"decimal rejects NaN", types.AttrDecimal, "", "NaN", false},
		{"date", types.AttrDate, "", "2025-03-09", true},
		{"date rejects datetime", types.AttrDate, "", "2025-03-09T10:00:00Z", false},
		{"date after max", types.AttrDate, `{"max":"2025-12-31"}`, "2026-01-01", false},
		{"datetime", types.AttrDateTime, "", "2025-03-09T10:00:00+02:00", true},
		{"datetime rejects date", types.AttrDateTime, "", "2025-03-09", false},
		{"boolean", types.AttrBoolean, "", "true", true},
		{"boolean numeric", types.AttrBoolean, "", "0", true},
		{"boolean rejects yes", types.AttrBoolean, "", "yes", false},
		{"text max length", types.AttrText, `{"maxLength":3}`, "abcd", false},
		{"text multibyte length", types.AttrText, `{"maxLength":3}`, "äöü", true},
		{"text pattern", types.AttrText, `{"pattern":"^[A-Z]+-[0-9]+$"}`, "OPS-12", true},
		{"text pattern mismatch", types.AttrText, `{"pattern":"^[A-Z]+-[0-9]+$"}`, "ops12", false},
		{"single choice", types.AttrSingleChoice, `{"choices":["low","high"]}`, "high", true},
		{"single choice unknown", types.AttrSingleChoice, `{"choices":["low","high"]}`, "mid", false},
		{"multiple choice", types.AttrMultipleChoice, `{"choices":["a","b","c"]}`, "a, c", true},
		{"multiple choice unknown", types.AttrMultipleChoice, `{"choices":["a","b"]}`, "a,z", false},
		{"url", types.AttrURL, "", "https://example.com/x", true},
		{"url relative", types.AttrURL, "", "/x/y", false},
		{"url scheme", types.AttrURL, `{"schemes":["https"]}`, "ftp://example.com", false},
		{"file extension", types.AttrFileReference, `{"extensions":["pdf",".PNG"]}`, "docs/spec.png", true},
		{"file extension rejected", types.AttrFileReference, `{"extensions":["pdf"]}`, "notes.txt", false},
		{"file any", types.AttrFileReference, "", "notes.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := Compile(tt.typ, json.RawMessage(tt.rules))
			if err != nil {
				t.Fatalf("Compile() failed: %v", err)
			}
			err = check(tt.value)
			if tt.ok && err != nil {
				t.Errorf("check(%q) failed: %v", tt.value, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("check(%q) succeeded, want error", tt.value)
			}
		})
	}
}

func TestCompile_MalformedRules(t *testing.T) {
	tests := []struct {
		name  string
		typ   types.AttributeType
		rules string
	}{
		{"unknown key", types.AttrInteger, `{"minimum":1}`},
		{"wrong shape", types.AttrText, `{"maxLength":"ten"}`},
		{"bad pattern", types.AttrText, `{"pattern":"("}`},
		{"zero max length", types.AttrText, `{"maxLength":0}`},
		{"bad date bound", types.AttrDate, `{"min":"yesterday"}`},
		{"rules on boolean", types.AttrBoolean, `{"strict":true}`},
		{"empty choices", types.AttrMultipleChoice, `{"choices":[]}`},
		{"not an object", types.AttrURL, `["https"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.typ, json.RawMessage(tt.rules)); err == nil {
				t.Error("Compile() succeeded, want error")
			}
		})
	}
}

func TestNormalizeRules(t *testing.T) {
	for _, in := range []string{"", "  ", "null", "{ }"} {
		got, err := NormalizeRules(json.RawMessage(in))
		if err != nil || got != nil {
			t.Errorf("NormalizeRules(%q) = %s, %v, want nil", in, got, err)
		}
	}
	got, err := NormalizeRules(json.RawMessage("{\n  \"min\": 1\n}"))
	if err != nil || string(got) != `{"min":1}` {
		t.Errorf("NormalizeRules() = %s, %v", got, err)
	}
}

func TestSplitChoices(t *testing.T) {
	got := SplitChoices(" a, ,b ,c,")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("SplitChoices() = %q", got)
	}
}
