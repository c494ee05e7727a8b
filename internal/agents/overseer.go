package agents

import (
	"context"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

// Overseer is the entry node. It only annotates the trace; the engine routes
// from it on status and error category.
type Overseer struct {
	deps Deps
}

// Name implements Node.
func (o *Overseer) Name() Name { return NodeOverseer }

// Run implements Node.
func (o *Overseer) Run(_ context.Context, st *domain.WorkflowState) (domain.Update, error) {
	var line string
	switch st.Status {
	case constants.StatusStart:
		line = logf(NodeOverseer, "starting session for goal %q", st.Goal)
	case constants.StatusQAFailed:
		line = logf(NodeOverseer, "verification failed (%s), attempt %d", st.ErrorCategory, st.QAAttempts)
	case constants.StatusQAPassed:
		line = logf(NodeOverseer, "verification passed, %d/%d tasks completed", st.CompletedTasks, st.TotalTasks)
	default:
		line = logf(NodeOverseer, "status %s", st.Status)
	}
	return domain.Update{AppendLogs: []string{line}}, nil
}
