package config

import (
	"slices"

	"github.com/mrz1836/forge/internal/errors"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(errors.ErrInvalidConfig, "config is nil")
	}
	if err := validateModel(&cfg.Model); err != nil {
		return err
	}
	if err := validateSandbox(&cfg.Sandbox); err != nil {
		return err
	}
	if err := validateWorkflow(&cfg.Workflow); err != nil {
		return err
	}
	if err := validateMemory(&cfg.Memory); err != nil {
		return err
	}
	if !slices.Contains(validBackends, cfg.Checkpoint.Backend) {
		return errors.Wrapf(errors.ErrInvalidConfig, "checkpoint.backend must be one of %v, got %q", validBackends, cfg.Checkpoint.Backend)
	}
	if cfg.Terminal.Listen == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "terminal.listen must not be empty")
	}
	return nil
}

func validateModel(cfg *ModelConfig) error {
	if !slices.Contains(validProviders, cfg.Provider) {
		return errors.Wrapf(errors.ErrInvalidConfig, "model.provider must be one of %v, got %q", validProviders, cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "model.timeout must be positive, got %s", cfg.Timeout)
	}
	if cfg.MaxRetries < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "model.max_retries must be at least 1, got %d", cfg.MaxRetries)
	}
	return nil
}

func validateSandbox(cfg *SandboxConfig) error {
	if !slices.Contains(validRuntimes, cfg.Runtime) {
		return errors.Wrapf(errors.ErrInvalidConfig, "sandbox.runtime must be one of %v, got %q", validRuntimes, cfg.Runtime)
	}
	if cfg.Stack == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "sandbox.stack must not be empty")
	}
	if cfg.Workdir == "" || cfg.Workdir[0] != '/' {
		return errors.Wrapf(errors.ErrInvalidConfig, "sandbox.workdir must be absolute, got %q", cfg.Workdir)
	}
	if cfg.CommandTimeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "sandbox.command_timeout must be positive, got %s", cfg.CommandTimeout)
	}
	if cfg.ProvisionWorkers < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "sandbox.provision_workers must be at least 1, got %d", cfg.ProvisionWorkers)
	}
	return nil
}

func validateWorkflow(cfg *WorkflowConfig) error {
	positive := map[string]int{
		"workflow.max_transitions":  cfg.MaxTransitions,
		"workflow.loop_window":      cfg.LoopWindow,
		"workflow.loop_threshold":   cfg.LoopThreshold,
		"workflow.history_cap":      cfg.HistoryCap,
		"workflow.planner_attempts": cfg.PlannerAttempts,
		"workflow.qa_max_attempts":  cfg.QAMaxAttempts,
		"workflow.health_retries":   cfg.HealthRetries,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] < 1 {
			return errors.Wrapf(errors.ErrInvalidConfig, "%s must be at least 1, got %d", key, positive[key])
		}
	}
	if cfg.LoopThreshold > cfg.LoopWindow {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"workflow.loop_threshold (%d) must not exceed workflow.loop_window (%d)", cfg.LoopThreshold, cfg.LoopWindow)
	}
	if cfg.HealthInterval < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "workflow.health_interval must not be negative, got %s", cfg.HealthInterval)
	}
	return nil
}

func validateMemory(cfg *MemoryConfig) error {
	positive := map[string]int{
		"memory.shortlist_cap":  cfg.ShortlistCap,
		"memory.top_k":          cfg.TopK,
		"memory.chunk_lines":    cfg.ChunkLines,
		"memory.max_file_bytes": cfg.MaxFileBytes,
		"memory.dimensions":     cfg.Dimensions,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] < 1 {
			return errors.Wrapf(errors.ErrInvalidConfig, "%s must be at least 1, got %d", key, positive[key])
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
