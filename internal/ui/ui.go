// Package ui renders generation progress and the final batch summary on the
// terminal. When stdout is not a terminal everything degrades to plain text.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/taskmill/taskmill/internal/tasks"
)

// Colors
var (
	primaryColor   = lipgloss.Color("39")  // Blue
	secondaryColor = lipgloss.Color("245") // Gray
	successColor   = lipgloss.Color("82")  // Green
	warningColor   = lipgloss.Color("214") // Orange
	errorColor     = lipgloss.Color("196") // Red
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	barFilledStyle = lipgloss.NewStyle().Foreground(primaryColor)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(secondaryColor)

	priorityStyles = map[string]lipgloss.Style{
		tasks.PriorityHigh:   lipgloss.NewStyle().Foreground(errorColor),
		tasks.PriorityMedium: lipgloss.NewStyle().Foreground(warningColor),
		tasks.PriorityLow:    lipgloss.NewStyle().Foreground(secondaryColor),
	}
)

const barWidth = 30

// Progress renders a single-line streaming progress bar. Repeated calls
// redraw the same line; Done finishes it.
type Progress struct {
	w     io.Writer
	label string
	last  int // last rendered percent, to skip redundant redraws
}

func NewProgress(label string) *Progress {
	return &Progress{w: os.Stderr, label: label, last: -1}
}

// Update redraws the bar for a fraction in [0,1]
func (p *Progress) Update(frac float64) {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	pct := int(frac * 100)
	if pct == p.last {
		return
	}
	p.last = pct

	filled := int(frac * barWidth)
	bar := barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(p.w, "\r%s %s %3d%%", dimStyle.Render(p.label), bar, pct)
}

// Done completes the bar and moves to the next line
func (p *Progress) Done() {
	p.Update(1)
	fmt.Fprintln(p.w)
}

// Summary prints the accepted batch as a task table with provenance.
func Summary(w io.Writer, batch *tasks.Batch) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Generated %d tasks", len(batch.Tasks))))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %s · %s · batch %s",
		batch.Meta.Provider, batch.Meta.Model, batch.Meta.ID)))
	fmt.Fprintln(w)

	for _, t := range batch.Tasks {
		prio := t.Priority
		if style, ok := priorityStyles[t.Priority]; ok {
			prio = style.Render(t.Priority)
		}
		deps := ""
		if len(t.Dependencies) > 0 {
			deps = dimStyle.Render(fmt.Sprintf(" (after %s)", joinInts(t.Dependencies)))
		}
		fmt.Fprintf(w, "  %2d. %s [%s]%s\n", t.ID, t.Title, prio, deps)
	}
}

// Saved prints the final confirmation line
func Saved(w io.Writer, path string) {
	fmt.Fprintln(w, successStyle.Render("✓")+" "+dimStyle.Render("saved to ")+path)
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
