package cli

import (
	"context"

	"github.com/spf13/cobra"
)

func addPurgeCommand(parent *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "purge <thread-id>",
		Short: "Delete every checkpoint of a session",
		Long: `Delete a session's checkpoints. The sandbox is left alone; remove it with
'forge sandbox cleanup'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd.Context(), a, args[0])
		},
	}
	parent.AddCommand(cmd)
}

func runPurge(ctx context.Context, a *app, threadID string) error {
	return a.withServices(ctx, func(svc *Services) error {
		if err := svc.Engine.Purge(ctx, threadID); err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			return a.output().JSON(map[string]string{"purged": threadID})
		}
		a.output().Success("purged session " + threadID)
		return nil
	})
}
