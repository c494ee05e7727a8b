// Package constants provides centralized constant values used throughout forge.
// This package is the single source of truth for all shared constants and MUST NOT
// import any other internal packages.
package constants

import "time"

// Artifact file names written inside a sandbox workdir.
const (
	// SpecFileName is the architecture spec written by the architect node.
	SpecFileName = "spec.md"

	// TasksFileName is the durable task list. Task progress survives process
	// restarts through this file, independent of the checkpoint store.
	TasksFileName = "tasks.json"

	// ProgressFileName is the project-history artifact. It is always included
	// in assembled context.
	ProgressFileName = "PROGRESS.md"

	// SandboxMetaDir holds forge-owned files inside the sandbox.
	SandboxMetaDir = ".forge"

	// VerifyScriptPath is the verification script written by the test-gen node.
	VerifyScriptPath = ".forge/verify.sh"

	// ServerPIDPath records the process id of the detached application server.
	ServerPIDPath = ".forge/server.pid"

	// ServerLogPath captures stdout and stderr of the detached application server.
	ServerLogPath = ".forge/server.log"
)

// Directory names used by forge for organizing data under the home directory.
const (
	// ForgeHome is the hidden directory name where forge stores all its data.
	ForgeHome = ".forge"

	// CheckpointsDir is the directory holding the checkpoint store.
	CheckpointsDir = "checkpoints"

	// IndexDir is the directory holding per-project vector indexes.
	IndexDir = "index"

	// SnapshotsDir is where sandbox codebases are exported for indexing.
	SnapshotsDir = "snapshots"

	// SandboxesDir is the root for local process sandboxes.
	SandboxesDir = "sandboxes"

	// LogsDir is the directory name where log files are stored.
	LogsDir = "logs"
)

// Configuration file names.
const (
	// GlobalConfigName is the name of the global configuration file in the forge home.
	GlobalConfigName = "config.yaml"

	// ProjectConfigName is the project-level configuration file, relative to the working directory.
	ProjectConfigName = ".forge/config.yaml"

	// CLILogFileName is the rotating CLI log, located at ~/.forge/logs/forge.log.
	CLILogFileName = "forge.log"
)

// Timeout configurations for various operations.
const (
	// DefaultModelTimeout bounds a single model invocation including retries.
	DefaultModelTimeout = 5 * time.Minute

	// DefaultCommandTimeout bounds a single sandbox command.
	DefaultCommandTimeout = 10 * time.Minute

	// DefaultHealthInterval is the wait between health probes.
	DefaultHealthInterval = 2 * time.Second

	// ProvisionPollInterval is how often callers poll a provisioning job.
	ProvisionPollInterval = 500 * time.Millisecond

	// ServerStopGrace is the wait after signalling the server before it is force killed.
	ServerStopGrace = 2 * time.Second
)

// Retry configuration defaults for recoverable operations.
const (
	// MaxRetryAttempts is the maximum number of attempts for transient model errors.
	MaxRetryAttempts = 3

	// InitialBackoff is the initial backoff duration before the first retry.
	InitialBackoff = 1 * time.Second

	// BackoffMultiplier is applied to the backoff after each failed attempt.
	BackoffMultiplier = 2
)

// Workflow limits.
const (
	// DefaultMaxTransitions is the node transition ceiling for one session.
	DefaultMaxTransitions = 150

	// DefaultLoopWindow is how many recent error entries loop detection inspects.
	DefaultLoopWindow = 5

	// DefaultLoopThreshold is how many near-duplicates inside the window trigger escalation.
	DefaultLoopThreshold = 3

	// DefaultHistoryCap escalates once error history grows past it.
	DefaultHistoryCap = 10

	// DefaultPlannerAttempts bounds the planner's retry-with-feedback loop.
	DefaultPlannerAttempts = 3

	// DefaultQAMaxAttempts bounds how many times the tester may run in a session.
	DefaultQAMaxAttempts = 3

	// DefaultHealthRetries bounds health probes after a server restart.
	DefaultHealthRetries = 10

	// MaxLogEntryLength truncates command output copied into state logs.
	MaxLogEntryLength = 2000
)

// Memory subsystem defaults.
const (
	// DefaultShortlistCap is the strict upper bound on model-selected files.
	DefaultShortlistCap = 5

	// DefaultTopK is the number of semantic snippets returned per query.
	DefaultTopK = 5

	// DefaultChunkLines is the number of lines per indexed chunk.
	DefaultChunkLines = 40

	// DefaultMaxFileBytes skips files larger than this when indexing.
	DefaultMaxFileBytes = 64 * 1024

	// DefaultEmbeddingDimensions is the hashed embedding width.
	DefaultEmbeddingDimensions = 256
)

// File locking.
const (
	// LockTimeout is the maximum time to wait for acquiring a file lock.
	LockTimeout = 5 * time.Second

	// LockRetryInterval is the delay between lock acquisition attempts.
	LockRetryInterval = 50 * time.Millisecond
)

// Log rotation settings for the CLI log file.
const (
	// LogMaxSizeMB is the size in megabytes before the log file is rotated.
	LogMaxSizeMB = 10

	// LogMaxBackups is the number of rotated files retained.
	LogMaxBackups = 3

	// LogMaxAgeDays is the maximum age of rotated files.
	LogMaxAgeDays = 28
)

// CheckpointSchemaVersion versions the persisted checkpoint record.
const CheckpointSchemaVersion = "1.0"

// Terminal bridge defaults.
const (
	// DefaultShell is started inside a sandbox when none is configured.
	DefaultShell = "/bin/sh"

	// TerminalPath is the bridge WebSocket endpoint.
	TerminalPath = "/terminal"

	// TerminalReadBuffer is the pty read size per output event.
	TerminalReadBuffer = 4096
)
