package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
)

func addIndexCommand(parent *cobra.Command, a *app) {
	var name string
	cmd := &cobra.Command{
		Use:   "index <project>",
		Short: "Rebuild a project's memory index",
		Long: `Export the sandbox codebase and rebuild the vector index used for context
assembly. The index is otherwise rebuilt after each completed task.

Examples:
  forge index acme
  forge index acme --sandbox forge-acme-1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), a, args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "sandbox", "", "sandbox name (default forge-<project>)")
	parent.AddCommand(cmd)
}

func runIndex(ctx context.Context, a *app, project, name string) error {
	if name == "" {
		name = sandbox.StableName(project)
	}
	if err := sandbox.ValidateName(name); err != nil {
		return errors.NewExitCode2Error(err)
	}
	return a.withServices(ctx, func(svc *Services) error {
		ix, err := svc.Indexer.Reindex(ctx, name, project)
		if err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			return a.output().JSON(map[string]any{
				"project":  ix.Project,
				"files":    ix.Files,
				"chunks":   len(ix.Chunks),
				"built_at": ix.BuiltAt,
			})
		}
		a.output().Success(fmt.Sprintf("indexed %s: %d files, %d chunks", project, ix.Files, len(ix.Chunks)))
		return nil
	})
}
