// Package sandbox manages the isolated per-project execution environment the
// agents operate in. A sandbox runs shell commands, holds the project files,
// hosts a long-lived application server, and exports its codebase for indexing.
//
// Two substrates implement Manager: ContainerManager drives a docker or podman
// CLI, and LocalManager uses a plain directory and host processes.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// Manager is the sandbox boundary. All operations are idempotent with respect
// to "already exists" and "already running" conditions.
type Manager interface {
	// Ensure reuses a running sandbox, restarts a stopped one, or builds and
	// creates a missing one.
	Ensure(ctx context.Context, name, stack string) (*domain.SandboxRecord, error)

	// Run executes a shell command in the workdir. A detached command is
	// launched in the background with its pid recorded, and is not awaited.
	Run(ctx context.Context, name, command string, detach bool) (*domain.ExecResult, error)

	// ReadFile returns the content of a workdir-relative file.
	ReadFile(ctx context.Context, name, path string) ([]byte, error)

	// WriteFile writes content to a workdir-relative file, creating parent directories.
	WriteFile(ctx context.Context, name, path string, content []byte) error

	// ListFiles returns workdir-relative paths of regular files under dir,
	// sorted, with excluded directories left out.
	ListFiles(ctx context.Context, name, dir string) ([]string, error)

	// StartServer detects the project's start command and launches it
	// detached, replacing any server already running. It returns the command.
	StartServer(ctx context.Context, name string) (string, error)

	// StopServer terminates the recorded server process, if any.
	StopServer(ctx context.Context, name string) error

	// CopyOut exports src (workdir-relative) into the local directory dest,
	// replacing its contents and skipping excluded directories.
	CopyOut(ctx context.Context, name, src, dest string) error

	// Cleanup stops and removes the sandbox.
	Cleanup(ctx context.Context, name string) error
}

// Option configures a manager.
type Option func(*options)

type options struct {
	logger   zerolog.Logger
	runner   Runner
	profiles Profiles
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(o *options) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithProfiles replaces the stack profiles.
func WithProfiles(p Profiles) Option {
	return func(o *options) {
		if p != nil {
			o.profiles = p
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   zerolog.Nop(),
		runner:   &ExecRunner{},
		profiles: BuiltinProfiles(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RuntimeEnvVar overrides runtime auto-detection.
const RuntimeEnvVar = "FORGE_CONTAINER_RUNTIME"

// New creates the Manager selected by cfg.Runtime. User stack profiles from
// cfg.ProfilesFile are merged over the built-ins.
func New(cfg *config.SandboxConfig, home string, opts ...Option) (Manager, error) {
	profiles, err := LoadProfiles(cfg.ProfilesFile)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithProfiles(profiles)}, opts...)

	runtime, err := DetectRuntime(cfg.Runtime, exec.LookPath)
	if err != nil {
		return nil, err
	}
	if runtime == "local" {
		root := cfg.Root
		if root == "" {
			root = filepath.Join(home, constants.SandboxesDir)
		}
		return NewLocalManager(cfg, root, opts...)
	}
	return NewContainerManager(cfg, runtime, opts...), nil
}

// DetectRuntime resolves "auto" to an installed container CLI. The
// FORGE_CONTAINER_RUNTIME environment variable takes precedence.
func DetectRuntime(configured string, lookPath func(string) (string, error)) (string, error) {
	if env := strings.TrimSpace(os.Getenv(RuntimeEnvVar)); env != "" {
		configured = env
	}
	switch configured {
	case "docker", "podman", "local":
		return configured, nil
	case "", "auto":
		for _, candidate := range []string{"docker", "podman"} {
			if _, err := lookPath(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", forgeerrors.ErrRuntimeNotFound
	default:
		return "", fmt.Errorf("%w: unknown runtime %q", forgeerrors.ErrInvalidConfig, configured)
	}
}

var nonNameChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// StableName derives a deterministic sandbox name from a project id.
func StableName(projectID string) string {
	slug := strings.Trim(nonNameChars.ReplaceAllString(strings.ToLower(projectID), "-"), "-.")
	if slug == "" {
		slug = "project"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return "forge-" + slug
}

// NewName generates a fresh, unique sandbox name for a project.
func NewName(projectID string) string {
	return StableName(projectID) + "-" + uuid.NewString()[:8]
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// ValidateName checks that name is usable as a container and directory name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("sandbox name %w", forgeerrors.ErrEmptyValue)
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: invalid sandbox name %q", forgeerrors.ErrInvalidConfig, name)
	}
	return nil
}
