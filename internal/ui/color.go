// Package ui provides terminal output helpers for hubsync.
package ui

import (
	"github.com/fatih/color"

	"github.com/klauern/hubsync/internal/sync"
)

// Color function types for styled output.
var (
	// Success is used for successful operations (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error is used for errors and failures (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning is used for warnings and cautions (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for informational messages (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
	// Bold is used for emphasis (bold white).
	Bold = color.New(color.Bold).SprintFunc()
	// Dim is used for secondary information (faint).
	Dim = color.New(color.Faint).SprintFunc()
	// Header is used for table headers (bold cyan).
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols with colors.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
	SymbolAdded   = "+"
	SymbolRemoved = "−"
	SymbolChanged = "~"
)

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string {
	return status(Success, SymbolSuccess, msg)
}

// StatusError returns a red X with optional message.
func StatusError(msg string) string {
	return status(Error, SymbolError, msg)
}

// StatusWarning returns a yellow warning with optional message.
func StatusWarning(msg string) string {
	return status(Warning, SymbolWarning, msg)
}

// StatusSkipped returns a dimmed skip symbol with optional message.
func StatusSkipped(msg string) string {
	return status(Dim, SymbolSkipped, msg)
}

// ActionStatus renders one per-item outcome line, e.g. "✓ pushed content/a".
func ActionStatus(r sync.ItemResult) string {
	label := string(r.Action) + " " + string(r.Kind) + "/" + r.Item
	if r.Message != "" && !r.Success() {
		label += ": " + r.Message
	}
	switch r.Action {
	case sync.ActionPushed, sync.ActionPulled, sync.ActionDeleted:
		return StatusSuccess(label)
	case sync.ActionFailed:
		return StatusError(label)
	case sync.ActionConflict:
		return StatusWarning(label)
	case sync.ActionAdded:
		return status(Success, SymbolAdded, label)
	case sync.ActionRemoved:
		return status(Error, SymbolRemoved, label)
	case sync.ActionChanged:
		return status(Warning, SymbolChanged, label)
	default:
		return StatusSkipped(label)
	}
}

func status(paint func(...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// DisableColors disables all color output.
// This is useful for piping output or for users who prefer no colors.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// SetColorMode applies an output.color setting: "always", "never" or "auto".
// Auto keeps fatih/color's own terminal and NO_COLOR detection.
func SetColorMode(mode string) {
	switch mode {
	case "always":
		EnableColors()
	case "never":
		DisableColors()
	}
}
