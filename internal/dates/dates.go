// Package dates parses due dates typed by people.
//
// ISO forms are tried first; anything else goes through olebedev/when with
// the English and common rule sets ("tomorrow", "next friday at 5pm",
// "in 3 days").
package dates

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/tasklattice/tasklattice/internal/types"
)

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Parser resolves expressions relative to a clock.
type Parser struct {
	w   *when.Parser
	loc *time.Location
	now func() time.Time
}

// New returns a parser using the local time zone.
func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, loc: time.Local, now: time.Now}
}

// WithClock returns a copy that resolves relative expressions against now
// in loc.
func (p *Parser) WithClock(now func() time.Time, loc *time.Location) *Parser {
	cp := *p
	cp.now = now
	if loc != nil {
		cp.loc = loc
	}
	return &cp
}

// Parse returns the instant s refers to, in UTC. Date-only ISO input is
// midnight in the parser's zone. The whole input must be a date expression.
func (p *Parser) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, types.Validationf("date is empty")
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t.UTC(), nil
		}
	}

	base := p.now().In(p.loc)
	r, err := p.w.Parse(s, base)
	if err != nil {
		return time.Time{}, types.Validationf("date %q: %v", s, err)
	}
	if r == nil || strings.TrimSpace(s[:r.Index]+s[r.Index+len(r.Text):]) != "" {
		return time.Time{}, types.Validationf("date %q is not recognized", s)
	}
	return r.Time.UTC(), nil
}

// ParseOptional parses s, returning nil for empty input.
func (p *Parser) ParseOptional(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := p.Parse(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var std = New()

// Parse parses s with the default parser.
func Parse(s string) (time.Time, error) { return std.Parse(s) }

// ParseOptional parses s with the default parser, returning nil for empty
// input.
func ParseOptional(s string) (*time.Time, error) { return std.ParseOptional(s) }
