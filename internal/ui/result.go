package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ResultType is the outcome a Result box reports
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

type resultLook struct {
	marker string
	label  string
	color  lipgloss.AdaptiveColor
}

var resultLooks = map[ResultType]resultLook{
	ResultSuccess: {SuccessMarker, "DONE", SuccessColor},
	ResultFailure: {FailureMarker, "FAILED", ErrorColor},
	ResultWarning: {WarningMarker, "WARNING", WarningColor},
}

// Result is the boxed summary printed at the end of a command. Details
// render in insertion order, hints after the error.
type Result struct {
	Type    ResultType
	Title   string
	Details []Param
	Error   error
	Hints   []string
	Width   int
}

// NewSuccessResult creates a success box
func NewSuccessResult(title string, details ...Param) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure box for err, followed by hints
func NewFailureResult(title string, err error, hints ...string) *Result {
	return &Result{Type: ResultFailure, Title: title, Error: err, Hints: hints, Width: GetTerminalWidth()}
}

// NewWarningResult creates a warning box
func NewWarningResult(title string, details ...Param) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth overrides the detected terminal width
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail appends a key/value line
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Param{Key: key, Value: value})
	return r
}

// Render draws the box
func (r *Result) Render() string {
	look := resultLooks[r.Type]
	inner := max(r.Width, MinTerminalWidth) - 6

	title := lipgloss.NewStyle().Foreground(look.color).Bold(true).
		Render(look.marker + " " + look.label + "  " + r.Title)
	sections := []string{title}

	if len(r.Details) > 0 {
		rows := make([]string, len(r.Details))
		for i, d := range r.Details {
			rows[i] = lipgloss.JoinHorizontal(lipgloss.Top,
				resultKeyStyle.Render(d.Key),
				resultValueStyle.Width(max(inner-keyColumnWidth, 10)).Render(d.Value))
		}
		sections = append(sections, strings.Join(rows, "\n"))
	}

	if r.Error != nil {
		sections = append(sections, lipgloss.NewStyle().Foreground(ErrorColor).Width(inner).Render(r.Error.Error()))
	}

	if len(r.Hints) > 0 {
		hints := make([]string, len(r.Hints))
		for i, h := range r.Hints {
			hints[i] = hintStyle.Render("→ " + h)
		}
		sections = append(sections, strings.Join(hints, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(look.color).
		Padding(0, 2).
		Width(inner + 4).
		Render(strings.Join(sections, "\n\n"))
}

func (r *Result) String() string {
	return r.Render()
}

// RenderFailure is shorthand for NewFailureResult(...).Render()
func RenderFailure(title string, err error, hints ...string) string {
	return NewFailureResult(title, err, hints...).Render()
}
