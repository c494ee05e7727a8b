package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/workflow"
)

type runOptions struct {
	project string
	stack   string
	sandbox string
	thread  string
	yolo    bool
}

func addRunCommand(parent *cobra.Command, a *app) {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Start a build session for a goal",
		Long: `Start a build session. The goal is the remaining arguments joined by spaces.

The session provisions the project's sandbox, then runs until it finishes or
reaches an approval gate. With --thread naming an unfinished session, that
session continues and no goal is needed.

Examples:
  forge run "add an endpoint returning a static JSON message" --project acme
  forge run --thread 6f1c... --yolo

Exit codes:
  0: Session passed verification
  1: Session failed or error
  2: Invalid input
  3: Session paused awaiting approval`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), a, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.project, "project", "", "project id (default \"default\")")
	cmd.Flags().StringVar(&opts.stack, "stack", "", "sandbox stack profile (default from config)")
	cmd.Flags().StringVar(&opts.sandbox, "sandbox", "", "sandbox name (default forge-<project>)")
	cmd.Flags().StringVar(&opts.thread, "thread", "", "thread id to start or continue")
	cmd.Flags().BoolVar(&opts.yolo, "yolo", false, "skip approval gates")
	parent.AddCommand(cmd)
}

func runRun(ctx context.Context, a *app, goal string, opts runOptions) error {
	if strings.TrimSpace(goal) == "" && opts.thread == "" {
		return errors.NewExitCode2Error(fmt.Errorf("goal %w", errors.ErrEmptyValue))
	}

	return a.withServices(ctx, func(svc *Services) error {
		res, err := svc.Engine.Run(ctx, goal, workflow.RunOptions{
			Yolo:        opts.yolo,
			ThreadID:    opts.thread,
			ProjectID:   opts.project,
			Stack:       opts.stack,
			SandboxName: opts.sandbox,
		})
		if err != nil {
			return err
		}
		return reportResult(a, res)
	})
}
