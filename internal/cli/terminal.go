package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
	"github.com/mrz1836/forge/internal/terminal"
)

// shutdownTimeout bounds draining bridge connections on exit.
const shutdownTimeout = 5 * time.Second

func addTerminalCommand(parent *cobra.Command, a *app) {
	cmd := &cobra.Command{
		Use:   "terminal",
		Short: "Interactive terminal bridge into sandboxes",
	}
	cmd.AddCommand(newTerminalServeCmd(a), newTerminalAttachCmd(a))
	parent.AddCommand(cmd)
}

func newTerminalServeCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the terminal bridge",
		Long: `Serve the WebSocket terminal bridge. Each connection starts a shell inside
the sandbox named by its start event or the "sandbox" query parameter.

Examples:
  forge terminal serve
  forge terminal serve --listen 0.0.0.0:7681`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTerminalServe(cmd.Context(), a, listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

func runTerminalServe(ctx context.Context, a *app, listen string) error {
	return a.withServices(ctx, func(svc *Services) error {
		if svc.Attacher == nil {
			return fmt.Errorf("%w: no runtime available for terminal sessions", errors.ErrRuntimeNotFound)
		}
		if listen == "" {
			listen = svc.Config.Terminal.Listen
		}
		bridge := terminal.NewBridge(svc.Attacher, terminal.WithLogger(svc.Logger))

		ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", listen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", listen, err)
		}
		server := &http.Server{
			Handler:           bridge.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		served := make(chan error, 1)
		go func() { served <- server.Serve(ln) }()
		a.output().Info("terminal bridge listening on ws://" + ln.Addr().String() + "/terminal")
		svc.Logger.Info().Str("listen", ln.Addr().String()).Msg("terminal bridge started")

		select {
		case err := <-served:
			if !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func newTerminalAttachCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "attach <sandbox>",
		Short: "Open a shell in a sandbox through the bridge",
		Long: `Connect to a running terminal bridge and open a shell inside a sandbox. The
local terminal is put in raw mode until the shell exits.

Examples:
  forge terminal attach forge-acme
  forge terminal attach forge-acme --addr ws://build-host:7681`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTerminalAttach(cmd.Context(), a, args[0], addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "bridge address (default from config)")
	return cmd
}

func runTerminalAttach(ctx context.Context, a *app, name, addr string) error {
	if err := sandbox.ValidateName(name); err != nil {
		return errors.NewExitCode2Error(err)
	}
	if addr == "" {
		cfg, err := LoadConfig(ctx, a.flags)
		if err != nil {
			return err
		}
		addr = cfg.Terminal.Listen
	}

	size := terminal.Size{}
	stdin := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if term.IsTerminal(stdin) {
		if cols, rows, err := term.GetSize(int(os.Stdout.Fd())); err == nil { //nolint:gosec // fd fits in int
			size = terminal.Size{Cols: uint16(cols), Rows: uint16(rows)} //nolint:gosec // terminal sizes fit
		}
	}

	client, err := terminal.Dial(ctx, addr, name, size)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if term.IsTerminal(stdin) {
		state, err := term.MakeRaw(stdin)
		if err != nil {
			return fmt.Errorf("failed to enter raw mode: %w", err)
		}
		defer func() { _ = term.Restore(stdin, state) }()
	}

	code, err := client.Stream(ctx, a.in, a.out)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%w: shell exited %d", errors.ErrCommandFailed, code)
	}
	return nil
}
