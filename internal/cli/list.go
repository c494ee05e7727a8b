package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/forge/internal/checkpoint"
	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/tui"
)

// minWatchInterval is the shortest --interval accepted by list --watch.
const minWatchInterval = 500 * time.Millisecond

type listOptions struct {
	watch    bool
	interval time.Duration
}

func addListCommand(parent *cobra.Command, a *app) {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Long: `List every session in the checkpoint store, newest first.

Examples:
  forge list
  forge list --output json
  forge list --watch --interval 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd.Context(), a, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "refresh the list until 'q' is pressed")
	cmd.Flags().DurationVar(&opts.interval, "interval", tui.DefaultWatchConfig().Interval, "refresh interval for --watch")
	parent.AddCommand(cmd)
}

func runList(ctx context.Context, a *app, opts listOptions) error {
	if opts.watch {
		if a.flags.Output == OutputJSON {
			return errors.NewExitCode2Error(errors.ErrWatchModeJSONUnsupported)
		}
		if opts.interval < minWatchInterval {
			return errors.NewExitCode2Error(fmt.Errorf("%w: %s is below %s", errors.ErrWatchIntervalTooShort, opts.interval, minWatchInterval))
		}
	}

	return a.withServices(ctx, func(svc *Services) error {
		if opts.watch {
			cfg := tui.DefaultWatchConfig()
			cfg.Interval = opts.interval
			cfg.BellEnabled = !a.flags.Quiet
			cfg.Bell = a.out
			if cfg.Bell == nil {
				cfg.Bell = io.Discard
			}
			return tui.RunWatch(ctx, svc.Engine, cfg, a.in, a.out)
		}

		sessions, err := svc.Engine.List(ctx)
		if err != nil {
			return err
		}
		if a.flags.Output == OutputJSON {
			if sessions == nil {
				sessions = []checkpoint.Summary{}
			}
			return a.output().JSON(sessions)
		}
		if len(sessions) == 0 {
			a.output().Info("No sessions.")
			return nil
		}

		table := tui.NewTable(a.out, []tui.TableColumn{
			{Name: "THREAD", Width: 36},
			{Name: "PROJECT", Width: 16},
			{Name: "STATUS", Width: 20},
			{Name: "NEXT", Width: 14},
			{Name: "SAVED", Width: 19},
		})
		table.WriteHeader()
		for _, s := range sessions {
			next := s.NextNode
			if s.Paused {
				next += " (paused)"
			}
			table.WriteRow(s.ThreadID, s.ProjectID, string(s.Status), next, s.SavedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	})
}
