package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wsdtool/wsdtool/internal/ui"
)

// Common styles
var (
	// Title style - bold, primary color
	TitleStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor).
			Bold(true).
			PaddingTop(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor).
			Italic(true)

	HelpStyle = lipgloss.NewStyle().
			Foreground(ui.MutedColor)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ui.ErrorColor).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ui.PrimaryColor)

	// DeviceStyle is for device endpoint addresses
	DeviceStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(ui.SuccessColor).
			Bold(true)

	// LogBoxStyle frames the recent announcements
	LogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ui.PrimaryColor).
			Padding(0, 1)
)
