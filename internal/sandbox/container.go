package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// ContainerManager implements Manager on top of a docker-compatible CLI.
// Each sandbox is a long-lived container kept alive with "sleep infinity",
// with a named volume mounted at the workdir and the stack's app port published.
type ContainerManager struct {
	runtime  string
	cfg      *config.SandboxConfig
	runner   Runner
	profiles Profiles
	logger   zerolog.Logger
}

// NewContainerManager creates a ContainerManager driving the runtime binary
// ("docker" or "podman").
func NewContainerManager(cfg *config.SandboxConfig, runtime string, opts ...Option) *ContainerManager {
	o := buildOptions(opts)
	return &ContainerManager{
		runtime:  runtime,
		cfg:      cfg,
		runner:   o.runner,
		profiles: o.profiles,
		logger:   o.logger,
	}
}

// Profiles returns the stack profiles in use.
func (m *ContainerManager) Profiles() Profiles {
	return m.profiles
}

func (m *ContainerManager) cli(ctx context.Context, stdin []byte, args ...string) (CommandResult, error) {
	cmd := Command{Name: m.runtime, Args: args}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	res, err := m.runner.Run(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("%w: %s %s: %w", forgeerrors.ErrSandboxRuntime, m.runtime, args[0], err)
	}
	return res, nil
}

// mustCLI is cli with a non-zero exit treated as an error.
func (m *ContainerManager) mustCLI(ctx context.Context, stdin []byte, args ...string) (CommandResult, error) {
	res, err := m.cli(ctx, stdin, args...)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%w: %s %s exited %d: %s", forgeerrors.ErrSandboxRuntime,
			m.runtime, args[0], res.ExitCode, strings.TrimSpace(string(res.Stderr)))
	}
	return res, nil
}

func (m *ContainerManager) imageName(stack string) string {
	return fmt.Sprintf("%s-%s:latest", m.cfg.ImagePrefix, stack)
}

func volumeName(name string) string {
	return name + "-data"
}

// state inspects the container. Missing containers are not an error.
func (m *ContainerManager) state(ctx context.Context, name string) (constants.SandboxStatus, error) {
	res, err := m.cli(ctx, nil, "inspect", "-f", "{{.State.Status}}", name)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return constants.SandboxMissing, nil
	}
	if strings.TrimSpace(string(res.Stdout)) == "running" {
		return constants.SandboxRunning, nil
	}
	return constants.SandboxStopped, nil
}

// Ensure implements Manager.
func (m *ContainerManager) Ensure(ctx context.Context, name, stack string) (*domain.SandboxRecord, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	prof, err := m.profiles.Get(stack)
	if err != nil {
		return nil, err
	}

	st, err := m.state(ctx, name)
	if err != nil {
		return nil, err
	}

	log := m.logger.With().Str("sandbox", name).Str("stack", stack).Logger()
	status := st
	switch st {
	case constants.SandboxRunning:
		log.Debug().Msg("reusing running sandbox")
	case constants.SandboxStopped:
		log.Info().Msg("restarting stopped sandbox")
		if _, err := m.mustCLI(ctx, nil, "start", name); err != nil {
			return nil, err
		}
		status = constants.SandboxRestarted
	case constants.SandboxMissing:
		if err := m.create(ctx, name, stack, prof); err != nil {
			return nil, err
		}
		status = constants.SandboxCreated
	case constants.SandboxCreated, constants.SandboxRestarted:
		// state never reports these
	}

	hostPort, err := m.hostPort(ctx, name, prof.AppPort)
	if err != nil {
		log.Warn().Err(err).Msg("could not resolve published port")
	}

	return &domain.SandboxRecord{
		Name:    name,
		Volume:  volumeName(name),
		PortMap: map[int]int{prof.AppPort: hostPort},
		Status:  status,
		Stack:   stack,
		Image:   m.imageName(stack),
	}, nil
}

func (m *ContainerManager) create(ctx context.Context, name, stack string, prof Profile) error {
	image := m.imageName(stack)
	log := m.logger.With().Str("sandbox", name).Str("image", image).Logger()

	res, err := m.cli(ctx, nil, "image", "inspect", image)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		log.Info().Msg("building sandbox image")
		start := time.Now()
		if _, err := m.mustCLI(ctx, []byte(prof.Dockerfile), "build", "-t", image, "-"); err != nil {
			return err
		}
		log.Info().Int64("duration_ms", time.Since(start).Milliseconds()).Msg("sandbox image built")
	}

	if _, err := m.mustCLI(ctx, nil, "volume", "create", volumeName(name)); err != nil {
		return err
	}

	log.Info().Msg("creating sandbox container")
	_, err = m.mustCLI(ctx, nil, "run", "-d",
		"--name", name,
		"-v", volumeName(name)+":"+m.cfg.Workdir,
		"-w", m.cfg.Workdir,
		"-p", strconv.Itoa(prof.AppPort),
		"--label", "forge.stack="+stack,
		image, "sleep", "infinity",
	)
	return err
}

// hostPort asks the runtime where containerPort is published.
func (m *ContainerManager) hostPort(ctx context.Context, name string, containerPort int) (int, error) {
	res, err := m.mustCLI(ctx, nil, "port", name, fmt.Sprintf("%d/tcp", containerPort))
	if err != nil {
		return 0, err
	}
	return parsePortOutput(string(res.Stdout))
}

// parsePortOutput reads the first "host:port" line printed by "docker port".
func parsePortOutput(out string) (int, error) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		idx := strings.LastIndex(line, ":")
		if idx < 0 {
			continue
		}
		if p, err := strconv.Atoi(line[idx+1:]); err == nil {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: no published port in %q", forgeerrors.ErrSandboxRuntime, out)
}

func (m *ContainerManager) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	d := m.cfg.CommandTimeout
	if d <= 0 {
		d = constants.DefaultCommandTimeout
	}
	return context.WithTimeout(ctx, d)
}

// execShell runs script with sh inside the container.
func (m *ContainerManager) execShell(ctx context.Context, name string, stdin []byte, script string) (CommandResult, error) {
	args := []string{"exec"}
	if stdin != nil {
		args = append(args, "-i")
	}
	args = append(args, "-w", m.cfg.Workdir, name, "sh", "-c", script)
	return m.cli(ctx, stdin, args...)
}

// Run implements Manager.
func (m *ContainerManager) Run(ctx context.Context, name, command string, detach bool) (*domain.ExecResult, error) {
	ctx, cancel := m.timeout(ctx)
	defer cancel()

	start := time.Now()
	script := command
	if detach {
		script = launchScript(m.cfg.Workdir, command)
	}

	res, err := m.execShell(ctx, name, nil, script)
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

func (m *ContainerManager) absPath(rel string) (string, error) {
	clean, err := CleanPath(m.cfg.Workdir, rel)
	if err != nil {
		return "", err
	}
	return path.Join(m.cfg.Workdir, clean), nil
}

// ReadFile implements Manager. Content crosses the CLI boundary base64 encoded.
func (m *ContainerManager) ReadFile(ctx context.Context, name, p string) ([]byte, error) {
	abs, err := m.absPath(p)
	if err != nil {
		return nil, err
	}
	res, err := m.execShell(ctx, name, nil, "base64 < "+ShellQuote(abs))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("failed to read %s: %w", p, fileError(res))
	}
	data, err := base64.StdEncoding.DecodeString(stripWhitespace(string(res.Stdout)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	return data, nil
}

// WriteFile implements Manager.
func (m *ContainerManager) WriteFile(ctx context.Context, name, p string, content []byte) error {
	abs, err := m.absPath(p)
	if err != nil {
		return err
	}
	script := fmt.Sprintf("mkdir -p %s && base64 -d > %s", ShellQuote(path.Dir(abs)), ShellQuote(abs))
	encoded := []byte(base64.StdEncoding.EncodeToString(content))
	res, err := m.execShell(ctx, name, encoded, script)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to write %s: %w", p, fileError(res))
	}
	return nil
}

// ListFiles implements Manager.
func (m *ContainerManager) ListFiles(ctx context.Context, name, dir string) ([]string, error) {
	clean, err := CleanPath(m.cfg.Workdir, dir)
	if err != nil {
		return nil, err
	}

	prune := make([]string, 0, len(constants.ExcludedDirNames))
	for _, d := range constants.ExcludedDirNames {
		prune = append(prune, "-name "+ShellQuote(d))
	}
	script := fmt.Sprintf("find %s \\( %s \\) -prune -o -type f -print", ShellQuote(clean), strings.Join(prune, " -o "))

	res, err := m.execShell(ctx, name, nil, script)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("failed to list %s: %w", dir, fileError(res))
	}
	return normalizeListing(string(res.Stdout)), nil
}

func normalizeListing(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rel := strings.TrimPrefix(path.Clean(line), "./")
		if rel == "." || Excluded(rel) {
			continue
		}
		files = append(files, rel)
	}
	sort.Strings(files)
	return files
}

// StartServer implements Manager.
func (m *ContainerManager) StartServer(ctx context.Context, name string) (string, error) {
	prof, err := m.profileOf(ctx, name)
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

// profileOf resolves the stack the container was created with.
func (m *ContainerManager) profileOf(ctx context.Context, name string) (Profile, error) {
	res, err := m.cli(ctx, nil, "inspect", "-f", `{{index .Config.Labels "forge.stack"}}`, name)
	if err != nil {
		return Profile{}, err
	}
	if res.ExitCode != 0 {
		return Profile{}, fmt.Errorf("%w: %s", forgeerrors.ErrSandboxNotFound, name)
	}
	return m.profiles.Get(strings.TrimSpace(string(res.Stdout)))
}

// StopServer implements Manager.
func (m *ContainerManager) StopServer(ctx context.Context, name string) error {
	res, err := m.execShell(ctx, name, nil, stopScript(m.cfg.Workdir))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%w: stop server: %s", forgeerrors.ErrSandboxRuntime, res.Combined())
	}
	return nil
}

// CopyOut implements Manager. The archive is produced by tar inside the
// container with excluded directories left out, then unpacked locally.
func (m *ContainerManager) CopyOut(ctx context.Context, name, src, dest string) error {
	abs, err := m.absPath(src)
	if err != nil {
		return err
	}

	args := []string{"exec", name, "tar", "-C", abs}
	for _, d := range constants.ExcludedDirNames {
		args = append(args, "--exclude="+d)
	}
	args = append(args, "-cf", "-", ".")

	res, err := m.mustCLI(ctx, nil, args...)
	if err != nil {
		return err
	}
	n, err := extractTar(bytes.NewReader(res.Stdout), dest)
	if err != nil {
		return err
	}
	m.logger.Debug().Str("sandbox", name).Str("dest", dest).Int("files", n).Msg("codebase exported")
	return nil
}

// Cleanup implements Manager. The data volume is kept so a later Ensure under
// the same name finds the project files again.
func (m *ContainerManager) Cleanup(ctx context.Context, name string) error {
	res, err := m.cli(ctx, nil, "rm", "-f", name)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 && !strings.Contains(strings.ToLower(string(res.Stderr)), "no such container") {
		return fmt.Errorf("%w: rm %s: %s", forgeerrors.ErrSandboxRuntime, name, strings.TrimSpace(string(res.Stderr)))
	}
	m.logger.Info().Str("sandbox", name).Msg("sandbox removed")
	return nil
}

func fileError(res CommandResult) error {
	msg := strings.TrimSpace(res.Combined())
	if strings.Contains(strings.ToLower(msg), "no such file") {
		return fmt.Errorf("%w: %s", forgeerrors.ErrFileNotFound, msg)
	}
	if strings.Contains(strings.ToLower(msg), "no such container") || strings.Contains(strings.ToLower(msg), "is not running") {
		return fmt.Errorf("%w: %s", forgeerrors.ErrSandboxNotFound, msg)
	}
	return fmt.Errorf("%w: %s", forgeerrors.ErrSandboxRuntime, msg)
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}

var _ Manager = (*ContainerManager)(nil)
