package agents

import (
	"context"
	"fmt"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
)

// errorEntryLimit bounds one error history entry.
const errorEntryLimit = 1500

// Reviewer judges the executor's result. On success it advances the step
// index; on failure it appends to the error history, classifies the failure,
// and flags a loop for the strategist.
type Reviewer struct {
	deps Deps
}

// Name implements Node.
func (r *Reviewer) Name() Name { return NodeReviewer }

// Run implements Node.
func (r *Reviewer) Run(_ context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(r.deps, NodeReviewer, st)
	step := st.CurrentStep()
	stepDesc := "(no step)"
	if step != nil {
		stepDesc = step.Summary()
	}

	v := Assess(st.LastResult)
	if v.Success {
		log.Debug().Str("reason", v.Reason).Msg("step accepted")
		line := logf(NodeReviewer, "%s done", stepDesc)
		if v.Reason != "" {
			line += " (" + v.Reason + ")"
		}
		return domain.Update{
			Status:           domain.Ptr(constants.StatusDone),
			CurrentStepIndex: domain.Ptr(st.CurrentStepIndex + 1),
			LoopDetected:     domain.Ptr(false),
			AppendLogs:       []string{line},
		}, nil
	}

	output := ""
	if st.LastResult != nil {
		output = st.LastResult.Output
	}
	entry := truncate(fmt.Sprintf("%s failed: %s\n%s", stepDesc, v.Reason, output), errorEntryLimit)
	history := append(append([]string(nil), st.ErrorHistory...), entry)

	wf := r.deps.Config.Workflow
	loop := Critical(history, wf.LoopWindow, wf.LoopThreshold, wf.HistoryCap)

	log.Warn().
		Str("category", v.Category.String()).
		Bool("loop", loop).
		Int("history", len(history)).
		Msg("step failed")
	logs := []string{logf(NodeReviewer, "%s failed [%s]: %s", stepDesc, v.Category, v.Reason)}
	if loop {
		logs = append(logs, logf(NodeReviewer, "repeating failure detected, escalating"))
	}
	return domain.Update{
		Status:        domain.Ptr(constants.StatusFailed),
		ErrorCategory: domain.Ptr(v.Category),
		LoopDetected:  domain.Ptr(loop),
		AppendErrors:  []string{entry},
		AppendLogs:    logs,
	}, nil
}
