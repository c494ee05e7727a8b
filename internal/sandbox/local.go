package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// localMetaFile records the stack of a local sandbox.
const localMetaFile = "sandbox.json"

// LocalManager implements Manager with a plain directory per sandbox under
// root. Commands run on the host with sh -c in that directory, so it offers
// no isolation beyond the working directory.
type LocalManager struct {
	root     string
	cfg      *config.SandboxConfig
	runner   Runner
	profiles Profiles
	logger   zerolog.Logger

	mu sync.Mutex
}

// NewLocalManager creates a LocalManager rooted at root.
func NewLocalManager(cfg *config.SandboxConfig, root string, opts ...Option) (*LocalManager, error) {
	if root == "" {
		return nil, fmt.Errorf("sandbox root %w", forgeerrors.ErrEmptyValue)
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}
	o := buildOptions(opts)
	return &LocalManager{
		root:     root,
		cfg:      cfg,
		runner:   o.runner,
		profiles: o.profiles,
		logger:   o.logger,
	}, nil
}

// Profiles returns the stack profiles in use.
func (m *LocalManager) Profiles() Profiles {
	return m.profiles
}

// Dir returns the host directory backing a sandbox.
func (m *LocalManager) Dir(name string) string {
	return filepath.Join(m.root, name)
}

func (m *LocalManager) workdir(name string) string {
	return LocalWorkdir(m.root, name)
}

// LocalWorkdir returns the host directory holding the project files of the
// local sandbox name under root.
func LocalWorkdir(root, name string) string {
	return filepath.Join(root, name, "workspace")
}

func (m *LocalManager) metaPath(name string) string {
	return filepath.Join(m.Dir(name), localMetaFile)
}

type localMeta struct {
	Stack     string    `json:"stack"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *LocalManager) requireSandbox(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := os.Stat(m.workdir(name)); err != nil {
		return fmt.Errorf("%w: %s", forgeerrors.ErrSandboxNotFound, name)
	}
	return nil
}

// Ensure implements Manager. Local sandboxes have no stopped state and the app
// port is the host port.
func (m *LocalManager) Ensure(_ context.Context, name, stack string) (*domain.SandboxRecord, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	prof, err := m.profiles.Get(stack)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	status := constants.SandboxRunning
	if _, err := os.Stat(m.workdir(name)); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(m.workdir(name), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create sandbox: %w", err)
		}
		data, err := json.Marshal(localMeta{Stack: stack, CreatedAt: time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(m.metaPath(name), data, filePerm); err != nil {
			return nil, fmt.Errorf("failed to write sandbox metadata: %w", err)
		}
		status = constants.SandboxCreated
		m.logger.Info().Str("sandbox", name).Str("stack", stack).Msg("local sandbox created")
	}

	return &domain.SandboxRecord{
		Name:    name,
		Volume:  m.workdir(name),
		PortMap: map[int]int{prof.AppPort: prof.AppPort},
		Status:  status,
		Stack:   stack,
	}, nil
}

// Run implements Manager.
func (m *LocalManager) Run(ctx context.Context, name, command string, detach bool) (*domain.ExecResult, error) {
	if err := m.requireSandbox(name); err != nil {
		return nil, err
	}

	d := m.cfg.CommandTimeout
	if d <= 0 {
		d = constants.DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	script := command
	if detach {
		script = launchScript(m.workdir(name), command)
	}

	start := time.Now()
	res, err := m.runner.Run(ctx, Command{Name: "sh", Args: []string{"-c", script}, Dir: m.workdir(name)})
	if err != nil {
		return nil, err
	}
	return &domain.ExecResult{
		ExitCode: res.ExitCode,
		Output:   res.Combined(),
		Detached: detach,
		Duration: time.Since(start),
	}, nil
}

func (m *LocalManager) hostPath(name, rel string) (string, error) {
	clean, err := CleanPath(m.cfg.Workdir, rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.workdir(name), filepath.FromSlash(clean)), nil
}

// ReadFile implements Manager.
func (m *LocalManager) ReadFile(_ context.Context, name, p string) ([]byte, error) {
	if err := m.requireSandbox(name); err != nil {
		return nil, err
	}
	hp, err := m.hostPath(name, p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(hp) //#nosec G304 -- path is confined to the sandbox by CleanPath
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", p, forgeerrors.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// WriteFile implements Manager.
func (m *LocalManager) WriteFile(_ context.Context, name, p string, content []byte) error {
	if err := m.requireSandbox(name); err != nil {
		return err
	}
	hp, err := m.hostPath(name, p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(hp), dirPerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(hp, content, 0o644); err != nil { //#nosec G306 -- project files must stay readable by the tools run on them
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

// ListFiles implements Manager.
func (m *LocalManager) ListFiles(_ context.Context, name, dir string) ([]string, error) {
	if err := m.requireSandbox(name); err != nil {
		return nil, err
	}
	base, err := m.hostPath(name, dir)
	if err != nil {
		return nil, err
	}
	wd := m.workdir(name)

	var files []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(wd, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && Excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to list %s: %w", dir, forgeerrors.ErrFileNotFound)
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (m *LocalManager) stack(name string) (string, error) {
	data, err := os.ReadFile(m.metaPath(name)) //#nosec G304 -- path is built from a validated name
	if err != nil {
		return "", fmt.Errorf("%w: %s", forgeerrors.ErrSandboxNotFound, name)
	}
	var meta localMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("failed to read sandbox metadata: %w", err)
	}
	return meta.Stack, nil
}

// StartServer implements Manager.
func (m *LocalManager) StartServer(ctx context.Context, name string) (string, error) {
	stack, err := m.stack(name)
	if err != nil {
		return "", err
	}
	prof, err := m.profiles.Get(stack)
	if err != nil {
		return "", err
	}
	command, err := DetectStartCommand(ctx, m, name, prof)
	if err != nil {
		return "", err
	}
	if err := m.StopServer(ctx, name); err != nil {
		return "", err
	}

	res, err := m.Run(ctx, name, command, true)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%w: server launch exited %d: %s", forgeerrors.ErrSandboxRuntime, res.ExitCode, res.Output)
	}
	m.logger.Info().Str("sandbox", name).Str("command", command).Msg("application server started")
	return command, nil
}

// StopServer implements Manager.
func (m *LocalManager) StopServer(ctx context.Context, name string) error {
	res, err := m.Run(ctx, name, stopScript(m.workdir(name)), false)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: stop server: %s", forgeerrors.ErrSandboxRuntime, res.Output)
	}
	return nil
}

// CopyOut implements Manager.
func (m *LocalManager) CopyOut(_ context.Context, name, src, dest string) error {
	if err := m.requireSandbox(name); err != nil {
		return err
	}
	hp, err := m.hostPath(name, src)
	if err != nil {
		return err
	}
	n, err := copyTree(hp, dest)
	if err != nil {
		return err
	}
	m.logger.Debug().Str("sandbox", name).Str("dest", dest).Int("files", n).Msg("codebase exported")
	return nil
}

// Cleanup implements Manager.
func (m *LocalManager) Cleanup(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := os.Stat(m.workdir(name)); err == nil {
		if err := m.StopServer(ctx, name); err != nil {
			m.logger.Warn().Err(err).Str("sandbox", name).Msg("failed to stop server during cleanup")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.RemoveAll(m.Dir(name)); err != nil {
		return fmt.Errorf("failed to remove sandbox %s: %w", name, err)
	}
	return nil
}

var _ Manager = (*LocalManager)(nil)
