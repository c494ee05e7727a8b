package cli

import (
	"fmt"
	"io"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/tui"
	"github.com/mrz1836/forge/internal/workflow"
)

// resultView is the JSON shape of a run or approve result.
type resultView struct {
	ThreadID       string                   `json:"thread_id"`
	Status         constants.WorkflowStatus `json:"status"`
	NextNode       string                   `json:"next_node"`
	Paused         bool                     `json:"paused"`
	Finished       bool                     `json:"finished"`
	Transitions    int                      `json:"transitions"`
	CompletedTasks int                      `json:"completed_tasks"`
	TotalTasks     int                      `json:"total_tasks"`
	LastError      string                   `json:"last_error,omitempty"`
}

func newResultView(res *workflow.Result) resultView {
	return resultView{
		ThreadID:       res.ThreadID,
		Status:         res.State.Status,
		NextNode:       res.NextNode.String(),
		Paused:         res.Paused,
		Finished:       res.Finished(),
		Transitions:    res.State.Transitions,
		CompletedTasks: res.State.CompletedTasks,
		TotalTasks:     res.State.TotalTasks,
		LastError:      res.State.LastError(),
	}
}

// reportResult prints res and converts the outcome into the command error:
// nil on success, *PausedError at a gate, ErrSessionFailed otherwise.
func reportResult(a *app, res *workflow.Result) error {
	out := a.output()
	if a.flags.Output == OutputJSON {
		if err := out.JSON(newResultView(res)); err != nil {
			return err
		}
	} else if !a.flags.Quiet {
		tui.WriteSession(a.out, tui.SessionView{State: res.State, NextNode: res.NextNode.String(), Paused: res.Paused})
		_, _ = fmt.Fprintln(a.out)
	}

	switch {
	case res.Paused:
		if a.flags.Output != OutputJSON {
			out.Warning(pausedMessage(res))
		}
		return &PausedError{ThreadID: res.ThreadID, NextNode: res.NextNode.String()}
	case res.Succeeded():
		out.Success("session " + res.ThreadID + " passed verification")
		return nil
	default:
		return fmt.Errorf("%w: %s ended with status %s", errors.ErrSessionFailed, res.ThreadID, res.State.Status)
	}
}

func pausedMessage(res *workflow.Result) string {
	if res.AwaitingOperator() {
		return fmt.Sprintf("step needs an operator: complete it with 'forge terminal attach %s', then run 'forge approve %s'",
			res.State.SandboxName, res.ThreadID)
	}
	return fmt.Sprintf("paused before %s: run 'forge approve %s' to continue", res.NextNode, res.ThreadID)
}

func writeLine(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
