package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"

	"github.com/mrz1836/forge/internal/constants"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Session is a running shell attached to a sandbox.
type Session interface {
	io.ReadWriteCloser

	// Resize changes the terminal size seen by the shell.
	Resize(size Size) error

	// Wait blocks until the shell exits and returns its exit code.
	Wait() (int, error)
}

// Attacher starts shells inside sandboxes.
type Attacher interface {
	Attach(ctx context.Context, sandboxName string, size Size) (Session, error)
}

// CommandBuilder returns the command that opens a shell in a sandbox.
type CommandBuilder func(ctx context.Context, sandboxName string) (*exec.Cmd, error)

// ContainerShell opens shell in a container through the runtime CLI.
func ContainerShell(runtime, workdir, shell string) CommandBuilder {
	return func(ctx context.Context, name string) (*exec.Cmd, error) {
		//#nosec G204 -- runtime is detected, name is validated
		return exec.CommandContext(ctx, runtime, "exec", "-it", "-w", workdir, name, shell), nil
	}
}

// LocalShell opens shell in the project directory of a local sandbox under root.
func LocalShell(root, shell string) CommandBuilder {
	return func(ctx context.Context, name string) (*exec.Cmd, error) {
		dir := sandbox.LocalWorkdir(root, name)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", forgeerrors.ErrSandboxNotFound, name)
		}
		cmd := exec.CommandContext(ctx, shell) //#nosec G204 -- shell comes from configuration
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "TERM=xterm-256color")
		return cmd, nil
	}
}

// PTYAttacher runs the shell command on a pseudo-terminal.
type PTYAttacher struct {
	build CommandBuilder
}

// NewPTYAttacher creates an attacher using build.
func NewPTYAttacher(build CommandBuilder) *PTYAttacher {
	return &PTYAttacher{build: build}
}

// NewAttacher picks the shell command matching the sandbox runtime.
func NewAttacher(runtime, workdir, localRoot, shell string) *PTYAttacher {
	if shell == "" {
		shell = constants.DefaultShell
	}
	if runtime == "local" {
		return NewPTYAttacher(LocalShell(localRoot, shell))
	}
	return NewPTYAttacher(ContainerShell(runtime, workdir, shell))
}

// Attach implements Attacher. The shell lives until the session is closed,
// not until ctx ends.
func (a *PTYAttacher) Attach(ctx context.Context, name string, size Size) (Session, error) {
	if err := sandbox.ValidateName(name); err != nil {
		return nil, err
	}
	cmd, err := a.build(context.WithoutCancel(ctx), name)
	if err != nil {
		return nil, err
	}
	size = size.orDefault()
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
	if err != nil {
		return nil, fmt.Errorf("failed to start shell in %s: %w", name, err)
	}
	return &ptySession{f: f, cmd: cmd}, nil
}

type ptySession struct {
	f   *os.File
	cmd *exec.Cmd
}

func (s *ptySession) Read(p []byte) (int, error)  { return s.f.Read(p) }
func (s *ptySession) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *ptySession) Resize(size Size) error {
	size = size.orDefault()
	return pty.Setsize(s.f, &pty.Winsize{Cols: size.Cols, Rows: size.Rows})
}

func (s *ptySession) Wait() (int, error) {
	err := s.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (s *ptySession) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	return s.f.Close()
}
