package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/tasklattice/tasklattice/internal/types"
)

func fixed(t *testing.T) *Parser {
	t.Helper()
	base := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
	return New().WithClock(func() time.Time { return base }, time.UTC)
}

func TestParse_ISO(t *testing.T) {
	p := fixed(t)
	tests := []struct {
		in   string
		want time.Time
	}{
		{in: "2026-04-01", want: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2026-04-01 17:00", want: time.Date(2026, 4, 1, 17, 0, 0, 0, time.UTC)},
		{in: "2026-04-01T17:00:05", want: time.Date(2026, 4, 1, 17, 0, 5, 0, time.UTC)},
		{in: "2026-04-01T17:00:00+02:00", want: time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC)},
		{in: "  2026-04-01  ", want: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := p.Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParse_NaturalLanguage(t *testing.T) {
	p := fixed(t)

	got, err := p.Parse("tomorrow")
	if err != nil {
		t.Fatalf("Parse(tomorrow) failed: %v", err)
	}
	if y, m, d := got.Date(); y != 2026 || m != time.March || d != 11 {
		t.Errorf("Parse(tomorrow) = %v, want 2026-03-11", got)
	}

	got, err = p.Parse("in 3 days")
	if err != nil {
		t.Fatalf("Parse(in 3 days) failed: %v", err)
	}
	if y, m, d := got.Date(); y != 2026 || m != time.March || d != 13 {
		t.Errorf("Parse(in 3 days) = %v, want 2026-03-13", got)
	}
}

func TestParse_Rejects(t *testing.T) {
	p := fixed(t)
	for _, in := range []string{"", "   ", "someday maybe", "2026-13-45"} {
		t.Run(in, func(t *testing.T) {
			if _, err := p.Parse(in); !errors.Is(err, types.ErrValidation) {
				t.Errorf("Parse(%q) error = %v, want validation", in, err)
			}
		})
	}
}

func TestParseOptional(t *testing.T) {
	p := fixed(t)
	got, err := p.ParseOptional("")
	if err != nil || got != nil {
		t.Errorf("ParseOptional(\"\") = %v, %v, want nil, nil", got, err)
	}
	got, err = p.ParseOptional("2026-05-05")
	if err != nil || got == nil || got.Day() != 5 {
		t.Errorf("ParseOptional(2026-05-05) = %v, %v", got, err)
	}
}
