package config

import (
	"github.com/spf13/viper"

	"github.com/mrz1836/forge/internal/constants"
)

// Supported enum values.
//
//nolint:gochecknoglobals // Constant-like lookup tables
var (
	validProviders = []string{"claude", "gemini", "codex"}
	validRuntimes  = []string{"auto", "docker", "podman", "local"}
	validBackends  = []string{"badger", "file"}
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:   "claude",
			Model:      "sonnet",
			Timeout:    constants.DefaultModelTimeout,
			MaxRetries: constants.MaxRetryAttempts,
		},
		Sandbox: SandboxConfig{
			Runtime:          "auto",
			Stack:            "node",
			Workdir:          "/workspace",
			ImagePrefix:      "forge",
			Host:             "localhost",
			CommandTimeout:   constants.DefaultCommandTimeout,
			ProvisionWorkers: 2,
		},
		Workflow: WorkflowConfig{
			MaxTransitions:  constants.DefaultMaxTransitions,
			LoopWindow:      constants.DefaultLoopWindow,
			LoopThreshold:   constants.DefaultLoopThreshold,
			HistoryCap:      constants.DefaultHistoryCap,
			PlannerAttempts: constants.DefaultPlannerAttempts,
			QAMaxAttempts:   constants.DefaultQAMaxAttempts,
			HealthRetries:   constants.DefaultHealthRetries,
			HealthInterval:  constants.DefaultHealthInterval,
			HealthPath:      "/",
		},
		Memory: MemoryConfig{
			ShortlistCap: constants.DefaultShortlistCap,
			TopK:         constants.DefaultTopK,
			ChunkLines:   constants.DefaultChunkLines,
			MaxFileBytes: constants.DefaultMaxFileBytes,
			Dimensions:   constants.DefaultEmbeddingDimensions,
		},
		Checkpoint: CheckpointConfig{
			Backend: "badger",
		},
		Terminal: TerminalConfig{
			Listen: "127.0.0.1:7681",
			Shell:  "/bin/sh",
		},
	}
}

// setDefaults registers DefaultConfig with viper so env vars bind to every key.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.model", d.Model.Model)
	v.SetDefault("model.timeout", d.Model.Timeout.String())
	v.SetDefault("model.max_retries", d.Model.MaxRetries)
	v.SetDefault("model.binary", "")

	v.SetDefault("sandbox.runtime", d.Sandbox.Runtime)
	v.SetDefault("sandbox.stack", d.Sandbox.Stack)
	v.SetDefault("sandbox.workdir", d.Sandbox.Workdir)
	v.SetDefault("sandbox.image_prefix", d.Sandbox.ImagePrefix)
	v.SetDefault("sandbox.host", d.Sandbox.Host)
	v.SetDefault("sandbox.command_timeout", d.Sandbox.CommandTimeout.String())
	v.SetDefault("sandbox.provision_workers", d.Sandbox.ProvisionWorkers)
	v.SetDefault("sandbox.profiles_file", "")
	v.SetDefault("sandbox.root", "")

	v.SetDefault("workflow.max_transitions", d.Workflow.MaxTransitions)
	v.SetDefault("workflow.loop_window", d.Workflow.LoopWindow)
	v.SetDefault("workflow.loop_threshold", d.Workflow.LoopThreshold)
	v.SetDefault("workflow.history_cap", d.Workflow.HistoryCap)
	v.SetDefault("workflow.planner_attempts", d.Workflow.PlannerAttempts)
	v.SetDefault("workflow.qa_max_attempts", d.Workflow.QAMaxAttempts)
	v.SetDefault("workflow.health_retries", d.Workflow.HealthRetries)
	v.SetDefault("workflow.health_interval", d.Workflow.HealthInterval.String())
	v.SetDefault("workflow.health_path", d.Workflow.HealthPath)

	v.SetDefault("memory.shortlist_cap", d.Memory.ShortlistCap)
	v.SetDefault("memory.top_k", d.Memory.TopK)
	v.SetDefault("memory.chunk_lines", d.Memory.ChunkLines)
	v.SetDefault("memory.max_file_bytes", d.Memory.MaxFileBytes)
	v.SetDefault("memory.dimensions", d.Memory.Dimensions)

	v.SetDefault("checkpoint.backend", d.Checkpoint.Backend)
	v.SetDefault("checkpoint.dir", "")

	v.SetDefault("terminal.listen", d.Terminal.Listen)
	v.SetDefault("terminal.shell", d.Terminal.Shell)
}
