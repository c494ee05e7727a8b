// Package tui provides terminal output components for forge.
//
// All colors use AdaptiveColor for light/dark terminal support. Call
// CheckNoColor at the start of commands to respect NO_COLOR and TERM=dumb.
//
// Status displays keep icon, color and text together so that output stays
// readable without color.
package tui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mrz1836/forge/internal/constants"
)

//nolint:gochecknoglobals // Intentional package-level constants for TUI styling API
var (
	// ColorPrimary is blue, used for active states and links.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for states that need the operator.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// StyleBold applies bold formatting.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies faint formatting.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// OutputStyles holds common output styles.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates common output styles.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Info:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Dim:     lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// CheckNoColor disables color output when the terminal should not get it.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns false if NO_COLOR is set (any value, including
// empty) or TERM=dumb.
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// StatusColor returns the semantic color for a workflow status.
func StatusColor(status constants.WorkflowStatus) lipgloss.AdaptiveColor {
	switch status {
	case constants.StatusQAPassed, constants.StatusDone:
		return ColorSuccess
	case constants.StatusFailed, constants.StatusQAFailed:
		return ColorError
	case constants.StatusWaitingApproval, constants.StatusWaitingInteraction:
		return ColorWarning
	case constants.StatusStart, constants.StatusPlanningNeeded, constants.StatusSpecReady,
		constants.StatusSpecApproved, constants.StatusPlanReady, constants.StatusCoding,
		constants.StatusExecuted, constants.StatusExecutionDone, constants.StatusStrategyChosen:
		return ColorPrimary
	}
	return ColorMuted
}

// StatusIcon returns the icon for a workflow status.
func StatusIcon(status constants.WorkflowStatus) string {
	switch status {
	case constants.StatusStart:
		return "○"
	case constants.StatusQAPassed, constants.StatusDone:
		return "✓"
	case constants.StatusFailed, constants.StatusQAFailed:
		return "✗"
	case constants.StatusWaitingApproval, constants.StatusWaitingInteraction:
		return "⚠"
	case constants.StatusPlanningNeeded, constants.StatusSpecReady, constants.StatusSpecApproved,
		constants.StatusPlanReady, constants.StatusCoding, constants.StatusExecuted,
		constants.StatusExecutionDone, constants.StatusStrategyChosen:
		return "●"
	}
	return "?"
}

// IsAttentionStatus reports whether a paused session with this status needs
// the operator.
func IsAttentionStatus(status constants.WorkflowStatus) bool {
	return status == constants.StatusWaitingApproval || status == constants.StatusWaitingInteraction
}

// SuggestedAction returns the command that moves a paused session on.
func SuggestedAction(status constants.WorkflowStatus, paused bool) string {
	if !paused {
		return ""
	}
	if status == constants.StatusWaitingInteraction {
		return "forge terminal attach, then forge approve"
	}
	return "forge approve"
}

// FormatStatus renders icon and text in the status color.
func FormatStatus(status constants.WorkflowStatus) string {
	text := StatusIcon(status) + " " + status.String()
	if !HasColorSupport() {
		return text
	}
	return lipgloss.NewStyle().Foreground(StatusColor(status)).Render(text)
}
