package agents

import (
	"context"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Developer dispatches work: the next plan step, else the next task, else
// reports that execution is done. Finishing a task updates tasks.json and
// PROGRESS.md and rebuilds the memory index.
type Developer struct {
	deps Deps
}

// Name implements Node.
func (d *Developer) Name() Name { return NodeDeveloper }

// Run implements Node.
func (d *Developer) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(d.deps, NodeDeveloper, st)

	if !st.PlanExhausted() {
		return d.dispatchStep(st), nil
	}

	u := domain.Update{}
	completed := st.CompletedTasks
	if st.CurrentTask != "" {
		if err := d.finishTask(ctx, st); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.Update{}, ctxErr
			}
			log.Warn().Err(err).Str("task", st.CurrentTask).Msg("could not record task completion")
			u.AppendLogs = append(u.AppendLogs, logf(NodeDeveloper, "could not record completion of %q: %v", st.CurrentTask, err))
		}
		completed++
		u.CompletedTasks = domain.Ptr(completed)
		u.AppendLogs = append(u.AppendLogs, logf(NodeDeveloper, "task %q completed (%d/%d)", st.CurrentTask, completed, st.TotalTasks))
		log.Info().Str("task", st.CurrentTask).Int("completed", completed).Msg("task completed")
	}

	if len(st.TaskQueue) == 0 {
		u.CurrentTask = domain.Ptr("")
		u.Status = domain.Ptr(constants.StatusExecutionDone)
		u.AppendLogs = append(u.AppendLogs, logf(NodeDeveloper, "all tasks executed"))
		return u, nil
	}

	next := st.TaskQueue[0]
	// PopTask sets CurrentTask; u.CurrentTask must stay nil here.
	u.PopTask = true
	u.Plan = domain.Ptr([]domain.PlanStep{})
	u.ClearLastResult = true
	u.LoopDetected = domain.Ptr(false)
	u.Status = domain.Ptr(constants.StatusPlanningNeeded)
	u.AppendLogs = append(u.AppendLogs, logf(NodeDeveloper, "starting task %q", next))
	log.Info().Str("task", next).Int("remaining", len(st.TaskQueue)-1).Msg("task started")
	return u, nil
}

// dispatchStep sanitises the remaining steps and hands the current one to the executor.
func (d *Developer) dispatchStep(st *domain.WorkflowState) domain.Update {
	workdir := d.deps.Config.Sandbox.Workdir
	plan := append([]domain.PlanStep(nil), st.Plan...)
	var logs []string
	changed := false

	for i := st.CurrentStepIndex; i < len(plan); i++ {
		step, err := sanitizeStep(workdir, plan[i])
		if err != nil {
			// The executor reports the bad path; the reviewer and debugger take it from there.
			logs = append(logs, logf(NodeDeveloper, "step %s left unsanitised: %v", plan[i].ID, err))
			continue
		}
		if step != plan[i] {
			plan[i] = step
			changed = true
		}
	}

	current := plan[st.CurrentStepIndex]
	u := domain.Update{
		Status: domain.Ptr(constants.StatusCoding),
	}
	if changed {
		u.Plan = domain.Ptr(plan)
		u.CurrentStepIndex = domain.Ptr(st.CurrentStepIndex)
	}
	u.AppendLogs = append(logs, logf(NodeDeveloper, "dispatching step %d/%d %s",
		st.CurrentStepIndex+1, len(plan), current.Summary()))
	return u
}

func sanitizeStep(workdir string, s domain.PlanStep) (domain.PlanStep, error) {
	if s.Action != constants.ActionWriteFile {
		return s, nil
	}
	p, err := sandbox.CleanPath(workdir, s.FilePath)
	if err != nil {
		return s, err
	}
	s.FilePath = p
	s.Content = StripFences(s.Content)
	return s, nil
}

func (d *Developer) finishTask(ctx context.Context, st *domain.WorkflowState) error {
	if err := completeTask(ctx, d.deps.Sandbox, st.SandboxName, st.CurrentTask, ""); err != nil {
		return err
	}
	if err := appendProgress(ctx, d.deps.Sandbox, st.SandboxName, "[x] "+st.CurrentTask); err != nil {
		return err
	}
	return d.deps.Memory.Reindex(ctx, st.SandboxName, project(st))
}
