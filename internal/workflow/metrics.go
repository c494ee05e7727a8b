package workflow

import (
	"time"

	"github.com/mrz1836/forge/internal/agents"
	"github.com/mrz1836/forge/internal/constants"
)

// Metrics collects metrics about sessions and node execution.
// Implementations can forward these to a monitoring system.
type Metrics interface {
	// SessionStarted is called when a new session begins.
	SessionStarted(threadID, projectID string)

	// NodeExecuted is called after each node returns.
	NodeExecuted(threadID string, node agents.Name, duration time.Duration, status constants.WorkflowStatus)

	// SessionPaused is called when the engine stops at an interrupt point.
	SessionPaused(threadID string, node agents.Name)

	// SessionFinished is called when a session reaches the end node.
	SessionFinished(threadID string, transitions int, status constants.WorkflowStatus)
}

// NoopMetrics is a no-op implementation of Metrics.
type NoopMetrics struct{}

var _ Metrics = (*NoopMetrics)(nil)

// SessionStarted implements Metrics.
func (NoopMetrics) SessionStarted(string, string) {}

// NodeExecuted implements Metrics.
func (NoopMetrics) NodeExecuted(string, agents.Name, time.Duration, constants.WorkflowStatus) {}

// SessionPaused implements Metrics.
func (NoopMetrics) SessionPaused(string, agents.Name) {}

// SessionFinished implements Metrics.
func (NoopMetrics) SessionFinished(string, int, constants.WorkflowStatus) {}
