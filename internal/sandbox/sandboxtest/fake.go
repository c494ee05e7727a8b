// Package sandboxtest provides an in-memory sandbox.Manager for tests.
package sandboxtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
)

// Handler answers a command. Returning nil falls through to the next handler.
type Handler func(command string) *domain.ExecResult

// Fake is an in-memory sandbox. Files live in a map; commands are answered by
// handlers and succeed with empty output when none matches.
type Fake struct {
	mu sync.Mutex

	Files    map[string][]byte
	Commands []string
	Handlers []Handler

	Ensured       int
	Created       bool
	ServerStarts  int
	ServerStops   int
	ServerRunning bool
	StartCommand  string
	Record        domain.SandboxRecord

	// EnsureErr, when set, is returned by Ensure.
	EnsureErr error
	// StopErr, when set, is returned by StopServer.
	StopErr error
}

// New creates an empty Fake whose server starts with "npm start" on port 3000.
func New() *Fake {
	return &Fake{
		Files:        make(map[string][]byte),
		StartCommand: "npm start",
		Record: domain.SandboxRecord{
			PortMap: map[int]int{3000: 49153},
		},
	}
}

// Handle registers a handler.
func (f *Fake) Handle(h Handler) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Handlers = append(f.Handlers, h)
	return f
}

// HandlePrefix answers commands starting with prefix.
func (f *Fake) HandlePrefix(prefix string, exitCode int, output string) *Fake {
	return f.Handle(func(cmd string) *domain.ExecResult {
		if strings.HasPrefix(cmd, prefix) {
			return &domain.ExecResult{ExitCode: exitCode, Output: output}
		}
		return nil
	})
}

// SetFile stores content at a workdir-relative path.
func (f *Fake) SetFile(path, content string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[path] = []byte(content)
	return f
}

// File returns the content at path and whether it exists.
func (f *Fake) File(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Files[path]
	return string(data), ok
}

// RanCommand reports whether any command containing substr was run.
func (f *Fake) RanCommand(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.Commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

// Ensure implements sandbox.Manager.
func (f *Fake) Ensure(_ context.Context, name, stack string) (*domain.SandboxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnsureErr != nil {
		return nil, f.EnsureErr
	}
	f.Ensured++
	rec := f.Record
	rec.Name = name
	rec.Stack = stack
	rec.Volume = name + "-data"
	rec.Status = constants.SandboxRunning
	if !f.Created {
		f.Created = true
		rec.Status = constants.SandboxCreated
	}
	return &rec, nil
}

// Run implements sandbox.Manager.
func (f *Fake) Run(_ context.Context, _, command string, detach bool) (*domain.ExecResult, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, command)
	handlers := append([]Handler(nil), f.Handlers...)
	f.mu.Unlock()

	for _, h := range handlers {
		if res := h(command); res != nil {
			r := *res
			r.Detached = detach
			return &r, nil
		}
	}
	return &domain.ExecResult{ExitCode: 0, Detached: detach}, nil
}

func clean(p string) (string, error) {
	return sandbox.CleanPath("/workspace", p)
}

// ReadFile implements sandbox.Manager.
func (f *Fake) ReadFile(_ context.Context, _, path string) ([]byte, error) {
	p, err := clean(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forgeerrors.ErrFileNotFound, p)
	}
	return append([]byte(nil), data...), nil
}

// WriteFile implements sandbox.Manager.
func (f *Fake) WriteFile(_ context.Context, _, path string, content []byte) error {
	p, err := clean(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[p] = append([]byte(nil), content...)
	return nil
}

// ListFiles implements sandbox.Manager.
func (f *Fake) ListFiles(_ context.Context, _, dir string) ([]string, error) {
	d, err := clean(dir)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for p := range f.Files {
		if sandbox.Excluded(p) {
			continue
		}
		if d == "." || p == d || strings.HasPrefix(p, d+"/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// StartServer implements sandbox.Manager.
func (f *Fake) StartServer(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ServerStarts++
	f.ServerRunning = true
	return f.StartCommand, nil
}

// StopServer implements sandbox.Manager.
func (f *Fake) StopServer(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ServerStops++
	f.ServerRunning = false
	return f.StopErr
}

// CopyOut implements sandbox.Manager by writing the in-memory files to dest.
func (f *Fake) CopyOut(_ context.Context, _, _, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	for p, data := range f.Files {
		if sandbox.Excluded(p) {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0o600); err != nil {
			return err
		}
	}
	return os.MkdirAll(dest, 0o750)
}

// Cleanup implements sandbox.Manager.
func (f *Fake) Cleanup(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = false
	f.ServerRunning = false
	return nil
}

var _ sandbox.Manager = (*Fake)(nil)
