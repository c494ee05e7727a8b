package workflow

import (
	"io"
	"os"

	"github.com/mrz1836/forge/internal/constants"
)

// Notification event names.
const (
	EventAwaitingApproval = "awaiting_approval"
	EventAwaitingOperator = "awaiting_operator"
	EventSessionFailed    = "session_failed"
	EventSessionPassed    = "session_passed"
)

// NotificationConfig holds configuration for bell notifications.
type NotificationConfig struct {
	// BellEnabled controls whether terminal bell notifications are enabled.
	BellEnabled bool

	// Quiet suppresses all notifications.
	Quiet bool

	// Events is the list of events that ring the bell.
	Events []string
}

// DefaultNotificationConfig rings for every event that needs a human.
func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		BellEnabled: true,
		Events:      []string{EventAwaitingApproval, EventAwaitingOperator, EventSessionFailed},
	}
}

// Notifier rings the terminal bell when a session stops and needs attention.
type Notifier struct {
	config NotificationConfig
	writer io.Writer
}

// NewNotifier creates a notifier writing to stdout.
func NewNotifier(cfg NotificationConfig) *Notifier {
	return &Notifier{config: cfg, writer: os.Stdout}
}

// NewNotifierWithWriter creates a notifier with a custom writer.
func NewNotifierWithWriter(cfg NotificationConfig, w io.Writer) *Notifier {
	return &Notifier{config: cfg, writer: w}
}

// Notify rings the bell if the session stopping in status (paused or not)
// maps to a configured event.
func (n *Notifier) Notify(status constants.WorkflowStatus, paused bool) {
	if n == nil || !n.config.BellEnabled || n.config.Quiet {
		return
	}
	event := eventFor(status, paused)
	if event == "" {
		return
	}
	for _, e := range n.config.Events {
		if e == event {
			_, _ = n.writer.Write([]byte("\a"))
			return
		}
	}
}

func eventFor(status constants.WorkflowStatus, paused bool) string {
	if paused {
		if status == constants.StatusWaitingInteraction {
			return EventAwaitingOperator
		}
		return EventAwaitingApproval
	}
	//nolint:exhaustive // Only terminal statuses map to events
	switch status {
	case constants.StatusFailed:
		return EventSessionFailed
	case constants.StatusQAPassed:
		return EventSessionPassed
	default:
		return ""
	}
}
