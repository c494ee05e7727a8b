package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/agents"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/tui"
)

type approveOptions struct {
	yes  bool
	yolo bool
}

func addApproveCommand(parent *cobra.Command, a *app) {
	var opts approveOptions

	cmd := &cobra.Command{
		Use:   "approve <thread-id>",
		Short: "Approve a paused session and resume it",
		Long: `Show what a paused session is waiting on and resume it.

Before spec approval the rendered spec.md is shown. Before a plan step the
step is shown. A session waiting on an interactive step records the step as
completed by the operator and continues with review.

Examples:
  forge approve 6f1c...          # Review, confirm, resume
  forge approve 6f1c... --yes    # Resume without the prompt
  forge approve 6f1c... --yolo   # Resume and skip the remaining gates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprove(cmd.Context(), a, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "approve without the confirmation prompt")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "skip the remaining approval gates")
	parent.AddCommand(cmd)
}

func runApprove(ctx context.Context, a *app, threadID string, opts approveOptions) error {
	return a.withServices(ctx, func(svc *Services) error {
		cp, err := svc.Engine.Status(ctx, threadID)
		if err != nil {
			return err
		}
		if cp.Finished() {
			return fmt.Errorf("%w: %s", errors.ErrSessionFinished, threadID)
		}
		if !cp.Paused {
			return fmt.Errorf("%w: %s is at %s", errors.ErrNotInterrupted, threadID, cp.NextNode)
		}

		if !opts.yes {
			if a.flags.Output != OutputJSON {
				spec := ""
				if agents.Name(cp.NextNode) == agents.NodeSpecApproval {
					spec = readSpec(ctx, svc, &cp.State)
				}
				writePending(a.out, cp, spec)
			}
			ok, err := a.confirm("Approve and resume?")
			if err != nil {
				if stderrors.Is(err, errors.ErrNonInteractive) {
					return errors.NewExitCode2Error(fmt.Errorf("%w: pass --yes to approve without a prompt", err))
				}
				return err
			}
			if !ok {
				return errors.ErrUserCanceled
			}
		}

		res, err := svc.Engine.Approve(ctx, threadID, opts.yolo)
		if err != nil {
			return err
		}
		return reportResult(a, res)
	})
}

// readSpec returns spec.md from the sandbox, falling back to the state context.
func readSpec(ctx context.Context, svc *Services, st *domain.WorkflowState) string {
	data, err := svc.Sandbox.ReadFile(ctx, st.SandboxName, constants.SpecFileName)
	if err != nil || len(data) == 0 {
		return st.Context
	}
	return string(data)
}

// writePending describes what approval will release.
func writePending(w io.Writer, cp *domain.Checkpoint, spec string) {
	st := &cp.State
	switch agents.Name(cp.NextNode) {
	case agents.NodeSpecApproval:
		writeLine(w, "%s", tui.StyleBold.Render("Specification for: "+st.Goal))
		_, _ = io.WriteString(w, tui.RenderMarkdown(spec))
	case agents.NodeExecutor:
		step := st.CurrentStep()
		if step == nil {
			writeLine(w, "No pending step.")
			return
		}
		writeLine(w, "%s", tui.StyleBold.Render(fmt.Sprintf("Next step %d/%d", st.CurrentStepIndex+1, len(st.Plan))))
		writeLine(w, "  %s", step.Summary())
		if step.Description != "" {
			writeLine(w, "  %s", step.Description)
		}
		if step.Action == constants.ActionWriteFile && step.Content != "" {
			_, _ = io.WriteString(w, tui.RenderMarkdown("```\n"+step.Content+"\n```\n"))
		}
		if st.Status == constants.StatusWaitingInteraction {
			writeLine(w, "This step is interactive. Complete it with 'forge terminal attach %s' before approving.", st.SandboxName)
		}
	default:
		writeLine(w, "Paused before %s.", cp.NextNode)
	}
}
