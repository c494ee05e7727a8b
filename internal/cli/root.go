// Package cli provides the command-line interface for forge.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/tui"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the logger initialized by the root command. Before
// PersistentPreRunE runs it is a zero-value logger.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// serviceCloseTimeout bounds waiting for background provisioning on exit.
const serviceCloseTimeout = 30 * time.Second

// app carries what every command shares.
type app struct {
	flags   *GlobalFlags
	factory *ServiceFactory
	out     io.Writer
	in      io.Reader

	// confirm asks the operator a yes/no question.
	confirm func(message string) (bool, error)
}

func (a *app) output() tui.Output {
	return tui.NewOutput(a.out, a.flags.Output, tui.WithQuiet(a.flags.Quiet))
}

// withServices opens the services, runs fn, and closes them again.
func (a *app) withServices(ctx context.Context, fn func(*Services) error) error {
	svc, err := a.factory.Open(ctx, a.flags, GetLogger())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serviceCloseTimeout)
		defer cancel()
		_ = svc.Close(closeCtx)
	}()
	return fn(svc)
}

func defaultConfirm(message string) (bool, error) {
	return tui.Confirm(message, true)
}

// newRootCmd creates the root command for the forge CLI.
func newRootCmd(a *app, info BuildInfo) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "forge",
		Short: "forge - autonomous build orchestrator",
		Long: `forge turns a natural-language goal into working code inside a per-project
sandbox. A graph of model-backed nodes writes a spec, breaks it into tasks,
plans and executes steps, reviews results, recovers from failures, and
verifies the running application.

Sessions are checkpointed after every node. A session pauses before the spec
is approved and before each plan step unless it runs with --yolo; resume it
with 'forge approve'.`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := BindGlobalFlags(v, cmd); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			a.flags.Output = v.GetString("output")
			a.flags.Verbose = v.GetBool("verbose")
			a.flags.Quiet = v.GetBool("quiet")

			if !IsValidOutputFormat(a.flags.Output) {
				return fmt.Errorf("%w: %q must be one of %v", errors.ErrInvalidOutputFormat, a.flags.Output, ValidOutputFormats())
			}
			tui.CheckNoColor()

			globalLoggerMu.Lock()
			globalLogger = InitLogger(a.flags.Verbose, a.flags.Quiet)
			globalLoggerMu.Unlock()
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(a.out)

	AddGlobalFlags(cmd, a.flags)

	addRunCommand(cmd, a)
	addApproveCommand(cmd, a)
	addStatusCommand(cmd, a)
	addListCommand(cmd, a)
	addPurgeCommand(cmd, a)
	addSandboxCommand(cmd, a)
	addIndexCommand(cmd, a)
	addTerminalCommand(cmd, a)
	addConfigCommand(cmd, a)

	return cmd
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, info BuildInfo) int {
	a := &app{
		flags:   &GlobalFlags{},
		factory: NewServiceFactory(),
		out:     os.Stdout,
		in:      os.Stdin,
		confirm: defaultConfirm,
	}
	err := execute(ctx, a, info, os.Args[1:], os.Stderr)
	CloseLogFile()
	return ExitCodeForError(err)
}

func execute(ctx context.Context, a *app, info BuildInfo, args []string, stderr io.Writer) error {
	//nolint:contextcheck // Cobra command pattern uses cmd.Context() internally
	cmd := newRootCmd(a, info)
	cmd.SetArgs(args)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var paused *PausedError
	if stderrors.As(err, &paused) {
		return err
	}
	message, action := errors.Actionable(err)
	_, _ = fmt.Fprintln(stderr, "Error: "+message)
	if action != "" {
		_, _ = fmt.Fprintln(stderr, "  "+action)
	}
	return err
}
