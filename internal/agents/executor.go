package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/sandbox"
)

// OperatorCompletedOutput is the result recorded for an interactive step the
// operator finished at the terminal.
const OperatorCompletedOutput = "completed by operator"

// Executor runs the current step in the sandbox. Server commands are launched
// detached, written files are linted, and successful steps are committed.
type Executor struct {
	deps Deps
}

// Name implements Node.
func (e *Executor) Name() Name { return NodeExecutor }

// Run implements Node.
func (e *Executor) Run(ctx context.Context, st *domain.WorkflowState) (domain.Update, error) {
	log := nodeLogger(e.deps, NodeExecutor, st)

	step := st.CurrentStep()
	if step == nil {
		res := domain.ExecResult{ExitCode: 1, Output: "error: no plan step to execute"}
		return domain.Update{
			Status:     domain.Ptr(constants.StatusExecuted),
			LastResult: &res,
			AppendLogs: []string{logf(NodeExecutor, "no plan step at index %d", st.CurrentStepIndex)},
		}, nil
	}
	log = log.With().Str("step_id", step.ID).Logger()

	if step.Interactive {
		log.Info().Msg("step needs an operator")
		return domain.Update{
			Status:     domain.Ptr(constants.StatusWaitingInteraction),
			AppendLogs: []string{logf(NodeExecutor, "step %s needs an operator: %s", step.ID, step.Summary())},
		}, nil
	}

	start := time.Now()
	var res *domain.ExecResult
	var err error
	switch step.Action {
	case constants.ActionWriteFile:
		res, err = e.writeFile(ctx, st, step)
	case constants.ActionCommand:
		res, err = e.runCommand(ctx, st, step)
	default:
		res = &domain.ExecResult{ExitCode: 1, Output: fmt.Sprintf("error: unknown step action %q", step.Action)}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Update{}, ctxErr
		}
		res = &domain.ExecResult{ExitCode: -1, Output: "error: " + err.Error()}
	}
	res.Duration = time.Since(start)

	if res.Succeeded() {
		e.commit(ctx, st, step)
	}

	log.Info().
		Int("exit_code", res.ExitCode).
		Bool("detached", res.Detached).
		Int64("duration_ms", res.Duration.Milliseconds()).
		Msg("step executed")
	return domain.Update{
		Status:     domain.Ptr(constants.StatusExecuted),
		LastResult: res,
		AppendLogs: []string{logf(NodeExecutor, "%s exit=%d\n%s", step.Summary(), res.ExitCode,
			truncate(res.Output, constants.MaxLogEntryLength))},
	}, nil
}

func (e *Executor) writeFile(ctx context.Context, st *domain.WorkflowState, step *domain.PlanStep) (*domain.ExecResult, error) {
	content := []byte(step.Content)
	if err := e.deps.Sandbox.WriteFile(ctx, st.SandboxName, step.FilePath, content); err != nil {
		return nil, err
	}
	res := &domain.ExecResult{Output: fmt.Sprintf("write_file ok (%d bytes)", len(content))}

	prof, err := e.deps.Profiles.Get(st.Stack)
	if err != nil {
		return res, nil //nolint:nilerr // unknown stacks are written without lint
	}
	lint := prof.LintCommand(step.FilePath)
	if lint == "" {
		return res, nil
	}
	lr, err := e.deps.Sandbox.Run(ctx, st.SandboxName, lint, false)
	if err != nil {
		return nil, err
	}
	res.Lint = strings.TrimSpace(lr.Output)
	res.ExitCode = lr.ExitCode
	if res.Lint != "" {
		res.Output += "\nlint: " + res.Lint
	}
	return res, nil
}

func (e *Executor) runCommand(ctx context.Context, st *domain.WorkflowState, step *domain.PlanStep) (*domain.ExecResult, error) {
	detach := sandbox.IsServerCommand(step.Command)
	if detach {
		// A previous server would hold the port.
		if err := e.deps.Sandbox.StopServer(ctx, st.SandboxName); err != nil {
			log := nodeLogger(e.deps, NodeExecutor, st)
			log.Debug().Err(err).Msg("stop before detached launch failed")
		}
	}
	return e.deps.Sandbox.Run(ctx, st.SandboxName, step.Command, detach)
}

// commit records the sandbox state in git. Failures only log.
func (e *Executor) commit(ctx context.Context, st *domain.WorkflowState, step *domain.PlanStep) {
	msg := "forge: " + step.Summary()
	script := "(git rev-parse --git-dir >/dev/null 2>&1 || git init -q) && git add -A && " +
		"git -c user.name=forge -c user.email=forge@localhost commit -q -m " + sandbox.ShellQuote(msg) +
		" >/dev/null 2>&1 || true"
	if _, err := e.deps.Sandbox.Run(ctx, st.SandboxName, script, false); err != nil {
		log := nodeLogger(e.deps, NodeExecutor, st)
		log.Debug().Err(err).Msg("auto-commit failed")
	}
}

// OperatorResult is the successful result recorded when an operator completes
// an interactive step.
func OperatorResult() *domain.ExecResult {
	return &domain.ExecResult{ExitCode: 0, Output: OperatorCompletedOutput}
}
