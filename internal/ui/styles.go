package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette. Adaptive colors keep output readable on light terminals.
var (
	PrimaryColor = lipgloss.AdaptiveColor{Light: "#005F87", Dark: "#5FAFD7"}
	SuccessColor = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"}
	ErrorColor   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
	WarningColor = lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB74D"}
	MutedColor   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8A8A8A"}
	TextColor    = lipgloss.AdaptiveColor{Light: "#1C1C1C", Dark: "#EEEEEE"}
)

const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100

	// keyColumnWidth aligns detail keys in result boxes
	keyColumnWidth = 16
)

var (
	HeaderTitleStyle      = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true).PaddingLeft(1)
	HeaderCommandStyle    = lipgloss.NewStyle().Foreground(MutedColor).Italic(true).PaddingLeft(1)
	HeaderParamKeyStyle   = lipgloss.NewStyle().Foreground(MutedColor).PaddingLeft(1)
	HeaderParamValueStyle = lipgloss.NewStyle().Foreground(TextColor)

	resultKeyStyle   = lipgloss.NewStyle().Foreground(MutedColor).Width(keyColumnWidth)
	resultValueStyle = lipgloss.NewStyle().Foreground(TextColor)
	hintStyle        = lipgloss.NewStyle().Foreground(MutedColor)

	// Device table
	TableHeaderStyle = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true).Underline(true)
	TableCellStyle   = lipgloss.NewStyle().Foreground(TextColor)
	KindPrinterStyle = lipgloss.NewStyle().Foreground(SuccessColor)
	KindScannerStyle = lipgloss.NewStyle().Foreground(WarningColor)
	MutedStyle       = lipgloss.NewStyle().Foreground(MutedColor)
)

const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	WarningMarker = "!"
	HelloMarker   = "+"
	ByeMarker     = "-"
)

// GetTerminalWidth returns the stdout width clamped to
// [MinTerminalWidth, MaxContentWidth].
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return MinTerminalWidth
	}
	return min(max(width, MinTerminalWidth), MaxContentWidth)
}

// IsTerminal reports whether stdout is a terminal
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
