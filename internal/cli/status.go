package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/tui"
)

func addStatusCommand(parent *cobra.Command, a *app) {
	var logs int

	cmd := &cobra.Command{
		Use:   "status <thread-id>",
		Short: "Show the latest checkpoint of a session",
		Long: `Show a session's status, task progress, plan, and the next node to run.

Examples:
  forge status 6f1c...
  forge status 6f1c... --logs 20
  forge status 6f1c... --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), a, args[0], logs)
		},
	}
	cmd.Flags().IntVar(&logs, "logs", 0, "also print the last N session log lines")
	parent.AddCommand(cmd)
}

func runStatus(ctx context.Context, a *app, threadID string, logs int) error {
	return a.withServices(ctx, func(svc *Services) error {
		cp, err := svc.Engine.Status(ctx, threadID)
		if err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			return a.output().JSON(cp)
		}

		tui.WriteSession(a.out, tui.SessionView{State: &cp.State, NextNode: cp.NextNode, Paused: cp.Paused})
		if logs > 0 && len(cp.State.Logs) > 0 {
			lines := cp.State.Logs
			if len(lines) > logs {
				lines = lines[len(lines)-logs:]
			}
			writeLine(a.out, "\n%s", tui.StyleBold.Render("Logs"))
			for _, l := range lines {
				writeLine(a.out, "  %s", l)
			}
		}
		writeLine(a.out, "\n%s", tui.StyleDim.Render(fmt.Sprintf("revision %s saved %s", cp.Revision, cp.SavedAt.Format("2006-01-02 15:04:05"))))
		return nil
	})
}
