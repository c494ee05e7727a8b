package agents

import (
	"context"
	"fmt"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/prompts"
)

// debuggerErrorTail is how many recent errors the debugger sees.
const debuggerErrorTail = 3

type fixProposal struct {
	Step     domain.PlanStep `json:"step"`
	Replaces bool            `json:"replaces_failed_step"`
}

func validateFix(f fixProposal) error {
	return f.Step.Validate()
}

// Debugger proposes one corrective step and splices it into the plan at the
// current index. It does not retry: a failed proposal ends the session.
type Debugger struct {
	deps Deps
}

// Name implements Node.
func (d *Debugger) Name() Name { return NodeDebugger }

// Run implements Node.
func (d *Debugger) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(d.deps, NodeDebugger, st)

	data := prompts.DebuggerData{
		Task:     st.CurrentTask,
		Category: st.ErrorCategory.String(),
		Errors:   st.ErrorTail(debuggerErrorTail),
	}
	if step := st.CurrentStep(); step != nil {
		data.Step = step.Summary()
		if step.Action == constants.ActionWriteFile {
			data.Step += "\n" + truncate(step.Content, constants.MaxLogEntryLength)
		}
	}
	if st.LastResult != nil {
		data.Output = truncate(st.LastResult.Output, constants.MaxLogEntryLength)
	}

	msgs, err := renderUser(prompts.Debugger, data)
	if err != nil {
		return domain.Update{}, err
	}
	fix, err := llm.CompleteJSON(ctx, d.deps.Client, llm.Request{
		Node:     NodeDebugger.String(),
		System:   debuggerSystem,
		Messages: msgs,
	}, 1, validateFix)
	if err == nil {
		fix.Step, err = sanitizeStep(d.deps.Config.Sandbox.Workdir, fix.Step)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		log.Error().Err(err).Msg("no fix proposed")
		return domain.Update{
			Status:       domain.Ptr(constants.StatusFailed),
			AppendErrors: []string{fmt.Sprintf("debugger failed: %v", err)},
			AppendLogs:   []string{logf(NodeDebugger, "no usable fix: %v", err)},
		}, nil
	}

	plan := spliceFix(st.Plan, st.CurrentStepIndex, fix)
	step := plan[st.CurrentStepIndex]
	log.Info().Str("step_id", step.ID).Bool("replaces", fix.Replaces).Msg("fix proposed")

	verb := "inserted"
	if fix.Replaces {
		verb = "replaced failed step with"
	}
	return domain.Update{
		Status:           domain.Ptr(constants.StatusCoding),
		Plan:             domain.Ptr(plan),
		CurrentStepIndex: domain.Ptr(st.CurrentStepIndex),
		ClearLastResult:  true,
		AppendLogs:       []string{logf(NodeDebugger, "%s fix %s", verb, step.Summary())},
	}, nil
}

// spliceFix returns a new plan with the fix at idx, either before the failed
// step or in its place.
func spliceFix(plan []domain.PlanStep, idx int, fix fixProposal) []domain.PlanStep {
	step := fix.Step
	step.ID = fmt.Sprintf("fix-%d", countFixes(plan)+1)

	out := make([]domain.PlanStep, 0, len(plan)+1)
	out = append(out, plan[:idx]...)
	out = append(out, step)
	rest := plan[idx:]
	if fix.Replaces && len(rest) > 0 {
		rest = rest[1:]
	}
	return append(out, rest...)
}

func countFixes(plan []domain.PlanStep) int {
	n := 0
	for _, s := range plan {
		if len(s.ID) > 4 && s.ID[:4] == "fix-" {
			n++
		}
	}
	return n
}
