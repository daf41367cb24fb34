// Package ui renders wsdtool command output with Lipgloss.
//
// Components follow a "render once" pattern: a Header banner for long
// running commands, device listings, and Result boxes for outcomes. When
// stdout is not a terminal, callers pass styled=false and get plain lines
// suitable for scripts.
//
// Logging is controlled separately via WSD_LOG_LEVEL; when unset, zap is
// silent and only this output appears.
package ui
