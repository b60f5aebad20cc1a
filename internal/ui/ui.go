// Package ui renders CLI output.
//
// Styling is applied only when stdout is a terminal; otherwise every Render
// helper returns its input unchanged and tables are written as
// tab-separated lines.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/tasklattice/tasklattice/internal/types"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EAB308"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#38BDF8"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	styled = true
)

// Init picks the color profile for out. Plain mode, a non-terminal out or
// NO_COLOR disable styling.
func Init(out *os.File, plain bool) {
	styled = !plain && IsTerminal(out) && os.Getenv("NO_COLOR") == ""
	if !styled {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd())) // #nosec G115 - fd fits in int
}

// Styled reports whether Init enabled styling.
func Styled() bool { return styled }

func render(s lipgloss.Style, text string) string {
	if !styled {
		return text
	}
	return s.Render(text)
}

func RenderPass(s string) string   { return render(passStyle, s) }
func RenderWarn(s string) string   { return render(warnStyle, s) }
func RenderFail(s string) string   { return render(failStyle, s) }
func RenderAccent(s string) string { return render(accentStyle, s) }
func RenderMuted(s string) string  { return render(mutedStyle, s) }

// RenderStatus colors a task status.
func RenderStatus(s types.Status) string {
	switch s {
	case types.StatusCompleted:
		return RenderPass(string(s))
	case types.StatusInProgress:
		return RenderAccent(string(s))
	case types.StatusBlocked:
		return RenderWarn(string(s))
	case types.StatusCancelled:
		return RenderMuted(string(s))
	}
	return string(s)
}

// RenderPriority colors a task priority.
func RenderPriority(p types.Priority) string {
	switch p {
	case types.PriorityCritical:
		return RenderFail(string(p))
	case types.PriorityHigh:
		return RenderWarn(string(p))
	case types.PriorityLow:
		return RenderMuted(string(p))
	}
	return string(p)
}

// Printer writes either JSON documents or human output.
type Printer struct {
	Out  io.Writer
	JSON bool
}

// NewPrinter returns a printer on out.
func NewPrinter(out io.Writer, asJSON bool) *Printer {
	return &Printer{Out: out, JSON: asJSON}
}

// Emit prints v as indented JSON in JSON mode, or calls human otherwise.
func (p *Printer) Emit(v any, human func(w io.Writer)) error {
	if p.JSON {
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(p.Out)
	return nil
}

// Table writes rows under headers.
func (p *Printer) Table(headers []string, rows [][]string) {
	if !styled {
		fmt.Fprintln(p.Out, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.Out, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(p.Out, t.Render())
}

// Tree writes lines indented two spaces per depth level.
func (p *Printer) Tree(lines []TreeLine) {
	for _, l := range lines {
		fmt.Fprintf(p.Out, "%s%s\n", strings.Repeat("  ", l.Depth), l.Text)
	}
}

// TreeLine is one row of Tree output.
type TreeLine struct {
	Depth int
	Text  string
}
