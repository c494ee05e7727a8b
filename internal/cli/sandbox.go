package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
)

func addSandboxCommand(parent *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Manage project sandboxes",
	}
	cmd.AddCommand(newSandboxEnsureCmd(a), newSandboxExecCmd(a), newSandboxCleanupCmd(a))
	parent.AddCommand(cmd)
}

type ensureOptions struct {
	stack string
	name  string
	fresh bool
}

func newSandboxEnsureCmd(a *app) *cobra.Command {
	var opts ensureOptions
	cmd := &cobra.Command{
		Use:   "ensure <project>",
		Short: "Create, restart, or reuse a project's sandbox",
		Long: `Provision a sandbox in the background and wait for it. A running sandbox is
reused, a stopped one restarted, and a missing one built and created.

Examples:
  forge sandbox ensure acme
  forge sandbox ensure acme --stack python
  forge sandbox ensure acme --fresh     # new uniquely named sandbox`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandboxEnsure(cmd.Context(), a, args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.stack, "stack", "", "stack profile (default from config)")
	cmd.Flags().StringVar(&opts.name, "name", "", "sandbox name (default forge-<project>)")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "generate a unique sandbox name")
	cmd.MarkFlagsMutuallyExclusive("name", "fresh")
	return cmd
}

func runSandboxEnsure(ctx context.Context, a *app, project string, opts ensureOptions) error {
	name := opts.name
	switch {
	case opts.fresh:
		name = sandbox.NewName(project)
	case name == "":
		name = sandbox.StableName(project)
	}
	if err := sandbox.ValidateName(name); err != nil {
		return errors.NewExitCode2Error(err)
	}

	return a.withServices(ctx, func(svc *Services) error {
		stack := opts.stack
		if stack == "" {
			stack = svc.Config.Sandbox.Stack
		}
		id := svc.Provisioner.Submit(ctx, name, stack)
		svc.Logger.Debug().Str("job_id", id).Str("sandbox", name).Msg("provisioning submitted")

		rec, err := svc.Provisioner.Wait(ctx, id, constants.ProvisionPollInterval)
		if err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			return a.output().JSON(rec)
		}
		a.output().Success(fmt.Sprintf("sandbox %s %s (stack %s)", rec.Name, rec.Status, rec.Stack))
		if len(rec.PortMap) > 0 {
			ports := make([]int, 0, len(rec.PortMap))
			for p := range rec.PortMap {
				ports = append(ports, p)
			}
			sort.Ints(ports)
			for _, p := range ports {
				writeLine(a.out, "  port %d -> %s:%d", p, svc.Config.Sandbox.Host, rec.PortMap[p])
			}
		}
		return nil
	})
}

func newSandboxExecCmd(a *app) *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "exec <name> -- <command>",
		Short: "Run a shell command in a sandbox",
		Long: `Run a shell command in the sandbox workdir and print its output.

Examples:
  forge sandbox exec forge-acme -- npm test
  forge sandbox exec forge-acme --detach -- npm start`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandboxExec(cmd.Context(), a, args[0], strings.Join(args[1:], " "), detach)
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "run in the background")
	return cmd
}

func runSandboxExec(ctx context.Context, a *app, name, command string, detach bool) error {
	if err := sandbox.ValidateName(name); err != nil {
		return errors.NewExitCode2Error(err)
	}
	return a.withServices(ctx, func(svc *Services) error {
		res, err := svc.Sandbox.Run(ctx, name, command, detach)
		if err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			if err := a.output().JSON(res); err != nil {
				return err
			}
		} else if res.Output != "" {
			_, _ = fmt.Fprint(a.out, res.Output)
			if !strings.HasSuffix(res.Output, "\n") {
				writeLine(a.out, "")
			}
		}
		if !res.Succeeded() {
			return fmt.Errorf("%w: %q exited %d", errors.ErrCommandFailed, command, res.ExitCode)
		}
		return nil
	})
}

func newSandboxCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <name>",
		Short: "Stop and remove a sandbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSandboxCleanup(cmd.Context(), a, args[0])
		},
	}
}

func runSandboxCleanup(ctx context.Context, a *app, name string) error {
	if err := sandbox.ValidateName(name); err != nil {
		return errors.NewExitCode2Error(err)
	}
	return a.withServices(ctx, func(svc *Services) error {
		if err := svc.Sandbox.Cleanup(ctx, name); err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			return a.output().JSON(map[string]string{"removed": name})
		}
		a.output().Success("removed sandbox " + name)
		return nil
	})
}
