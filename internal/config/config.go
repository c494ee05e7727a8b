// Package config provides configuration management for forge with layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (FORGE_* prefix, dots become underscores)
//  3. Project config (.forge/config.yaml)
//  4. Global config (~/.forge/config.yaml)
//  5. Built-in defaults
//
// IMPORTANT: This package may import internal/constants and internal/errors,
// but MUST NOT import internal/domain or other internal packages.
package config

import "time"

// Config is the root configuration structure for forge.
type Config struct {
	// Model configures the language-model capability.
	Model ModelConfig `yaml:"model" mapstructure:"model"`

	// Sandbox configures the per-project execution environment.
	Sandbox SandboxConfig `yaml:"sandbox" mapstructure:"sandbox"`

	// Workflow configures engine limits and recovery thresholds.
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`

	// Memory configures context assembly and the vector index.
	Memory MemoryConfig `yaml:"memory" mapstructure:"memory"`

	// Checkpoint configures the session checkpoint store.
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`

	// Terminal configures the interactive terminal bridge.
	Terminal TerminalConfig `yaml:"terminal" mapstructure:"terminal"`
}

// ModelConfig holds settings for model invocation.
type ModelConfig struct {
	// Provider selects the CLI used to reach the model: claude, gemini, or codex.
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model is passed to the provider CLI as its model name.
	Model string `yaml:"model" mapstructure:"model"`

	// Timeout bounds one invocation including retries.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the attempt budget for transient failures.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// Binary overrides the provider executable path.
	Binary string `yaml:"binary,omitempty" mapstructure:"binary"`
}

// SandboxConfig holds settings for sandbox provisioning and command execution.
type SandboxConfig struct {
	// Runtime is auto, docker, podman, or local.
	Runtime string `yaml:"runtime" mapstructure:"runtime"`

	// Stack is the default stack profile for new projects.
	Stack string `yaml:"stack" mapstructure:"stack"`

	// Workdir is the project directory inside the sandbox.
	Workdir string `yaml:"workdir" mapstructure:"workdir"`

	// ImagePrefix prefixes built image names: <prefix>-<stack>:latest.
	ImagePrefix string `yaml:"image_prefix" mapstructure:"image_prefix"`

	// Host is where published sandbox ports are reachable from forge.
	Host string `yaml:"host" mapstructure:"host"`

	// CommandTimeout bounds a single sandbox command.
	CommandTimeout time.Duration `yaml:"command_timeout" mapstructure:"command_timeout"`

	// ProvisionWorkers bounds concurrent background provisioning jobs.
	ProvisionWorkers int `yaml:"provision_workers" mapstructure:"provision_workers"`

	// ProfilesFile is an optional YAML file of stack profiles merged over the built-ins.
	ProfilesFile string `yaml:"profiles_file,omitempty" mapstructure:"profiles_file"`

	// Root holds local process sandboxes. Empty means ~/.forge/sandboxes.
	Root string `yaml:"root,omitempty" mapstructure:"root"`
}

// WorkflowConfig holds engine limits.
type WorkflowConfig struct {
	// MaxTransitions is the node transition ceiling per session.
	MaxTransitions int `yaml:"max_transitions" mapstructure:"max_transitions"`

	// LoopWindow is how many recent errors loop detection inspects.
	LoopWindow int `yaml:"loop_window" mapstructure:"loop_window"`

	// LoopThreshold is the near-duplicate count inside the window that escalates to the strategist.
	LoopThreshold int `yaml:"loop_threshold" mapstructure:"loop_threshold"`

	// HistoryCap escalates once error history is longer than this.
	HistoryCap int `yaml:"history_cap" mapstructure:"history_cap"`

	// PlannerAttempts bounds the planner's retry-with-feedback loop.
	PlannerAttempts int `yaml:"planner_attempts" mapstructure:"planner_attempts"`

	// QAMaxAttempts bounds tester runs per session.
	QAMaxAttempts int `yaml:"qa_max_attempts" mapstructure:"qa_max_attempts"`

	// HealthRetries bounds health probes after a server restart.
	HealthRetries int `yaml:"health_retries" mapstructure:"health_retries"`

	// HealthInterval is the wait between health probes.
	HealthInterval time.Duration `yaml:"health_interval" mapstructure:"health_interval"`

	// HealthPath is the HTTP path probed on the application server.
	HealthPath string `yaml:"health_path" mapstructure:"health_path"`
}

// MemoryConfig holds context-assembly settings.
type MemoryConfig struct {
	ShortlistCap int `yaml:"shortlist_cap" mapstructure:"shortlist_cap"`
	TopK         int `yaml:"top_k" mapstructure:"top_k"`
	ChunkLines   int `yaml:"chunk_lines" mapstructure:"chunk_lines"`
	MaxFileBytes int `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	Dimensions   int `yaml:"dimensions" mapstructure:"dimensions"`
}

// CheckpointConfig holds checkpoint store settings.
type CheckpointConfig struct {
	// Backend is badger or file.
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Dir overrides ~/.forge/checkpoints.
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// TerminalConfig holds terminal bridge settings.
type TerminalConfig struct {
	// Listen is the bridge server address.
	Listen string `yaml:"listen" mapstructure:"listen"`

	// Shell is the shell started inside the sandbox.
	Shell string `yaml:"shell" mapstructure:"shell"`
}
