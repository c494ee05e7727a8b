package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mrz1836/forge/internal/agents"
	"github.com/mrz1836/forge/internal/checkpoint"
	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/llm"
	"github.com/mrz1836/forge/internal/memory"
	"github.com/mrz1836/forge/internal/sandbox"
	"github.com/mrz1836/forge/internal/terminal"
	"github.com/mrz1836/forge/internal/workflow"
)

// Services are the collaborators behind the commands. Close releases them.
type Services struct {
	Config      *config.Config
	Home        string
	Store       checkpoint.Store
	Sandbox     sandbox.Manager
	Provisioner *sandbox.Provisioner
	Indexer     *memory.Indexer
	Engine      *workflow.Engine
	Attacher    terminal.Attacher
	Logger      zerolog.Logger
}

// Close shuts down the provisioner and the checkpoint store.
func (s *Services) Close(ctx context.Context) error {
	if s.Provisioner != nil {
		if err := s.Provisioner.Shutdown(ctx); err != nil {
			s.Logger.Warn().Err(err).Msg("provisioner shutdown incomplete")
		}
	}
	if s.Store != nil {
		return s.Store.Close()
	}
	return nil
}

// Backends are the externally constructed parts of Services.
type Backends struct {
	Client  llm.Client
	Sandbox sandbox.Manager
	Store   checkpoint.Store
	Health  sandbox.HealthChecker

	// Bell receives the terminal bell on paused and finished sessions.
	Bell io.Writer
}

// ServiceFactory creates the services a command needs.
type ServiceFactory struct {
	// Open builds the services. Tests replace it to inject fakes.
	Open func(ctx context.Context, flags *GlobalFlags, logger zerolog.Logger) (*Services, error)
}

// NewServiceFactory creates a factory that wires production backends.
func NewServiceFactory() *ServiceFactory {
	return &ServiceFactory{Open: OpenServices}
}

// LoadConfig loads configuration honoring --config.
func LoadConfig(ctx context.Context, flags *GlobalFlags) (*config.Config, error) {
	if flags.ConfigFile == "" {
		return config.Load(ctx)
	}
	if _, err := os.Stat(flags.ConfigFile); err != nil {
		return nil, errors.NewExitCode2Error(fmt.Errorf("config file %s: %w", flags.ConfigFile, err))
	}
	globalPath, err := config.GlobalConfigPath()
	if err != nil {
		globalPath = ""
	}
	return config.LoadFromPaths(ctx, flags.ConfigFile, globalPath)
}

// OpenServices wires the production services: the CLI model client, the
// configured sandbox runtime, and the configured checkpoint backend.
func OpenServices(ctx context.Context, flags *GlobalFlags, logger zerolog.Logger) (*Services, error) {
	cfg, err := LoadConfig(logger.WithContext(ctx), flags)
	if err != nil {
		return nil, err
	}
	home, err := config.Home()
	if err != nil {
		return nil, err
	}

	client, err := llm.NewCLIClient(&cfg.Model, llm.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	mgr, err := sandbox.New(&cfg.Sandbox, home, sandbox.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	store, err := checkpoint.Open(cfg, home)
	if err != nil {
		return nil, err
	}

	bell := io.Writer(os.Stderr)
	if flags.Quiet || flags.Output == OutputJSON {
		bell = io.Discard
	}
	svc, err := AssembleServices(cfg, home, Backends{
		Client:  client,
		Sandbox: mgr,
		Store:   store,
		Health:  sandbox.NewHTTPChecker(),
		Bell:    bell,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	runtime, err := sandbox.DetectRuntime(cfg.Sandbox.Runtime, exec.LookPath)
	if err == nil {
		svc.Attacher = terminal.NewAttacher(runtime, cfg.Sandbox.Workdir, cfg.SandboxRoot(home), cfg.Terminal.Shell)
	}
	return svc, nil
}

// AssembleServices wires memory, the node set, the provisioner and the
// engine around b.
func AssembleServices(cfg *config.Config, home string, b Backends, logger zerolog.Logger) (*Services, error) {
	profiles, err := sandbox.LoadProfiles(cfg.Sandbox.ProfilesFile)
	if err != nil {
		return nil, err
	}

	embedder := memory.NewHashEmbedder(cfg.Memory.Dimensions)
	indexer := memory.NewIndexer(
		b.Sandbox,
		memory.NewIndexStore(filepath.Join(home, constants.IndexDir)),
		embedder,
		filepath.Join(home, constants.SnapshotsDir),
		cfg.Memory,
		logger,
	)
	selector := memory.NewSelector(b.Client, cfg.Memory.ShortlistCap, logger)
	assembler := memory.NewAssembler(b.Sandbox, selector, indexer, cfg.Memory, logger)

	nodes, err := agents.New(agents.Deps{
		Client:   b.Client,
		Sandbox:  b.Sandbox,
		Memory:   assembler,
		Health:   b.Health,
		Profiles: profiles,
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	bell := b.Bell
	if bell == nil {
		bell = io.Discard
	}
	provisioner := sandbox.NewProvisioner(b.Sandbox, cfg.Sandbox.ProvisionWorkers, logger)
	engine := workflow.NewEngine(nodes, b.Store, cfg,
		workflow.WithLogger(logger),
		workflow.WithProvisioner(provisioner),
		workflow.WithNotifier(workflow.NewNotifierWithWriter(workflow.DefaultNotificationConfig(), bell)),
	)

	return &Services{
		Config:      cfg,
		Home:        home,
		Store:       b.Store,
		Sandbox:     b.Sandbox,
		Provisioner: provisioner,
		Indexer:     indexer,
		Engine:      engine,
		Logger:      logger,
	}, nil
}
