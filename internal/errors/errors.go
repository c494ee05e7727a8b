// Package errors provides centralized error handling for forge.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrEmptyValue indicates a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrInvalidConfig indicates configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUserCanceled indicates the operator declined a prompt.
	ErrUserCanceled = errors.New("canceled by user")

	// ErrNonInteractive indicates a prompt was needed but no terminal is attached.
	ErrNonInteractive = errors.New("no interactive terminal available")
)

// Checkpoint errors.
var (
	// ErrThreadNotFound indicates no checkpoint exists for the thread id.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrCheckpointCorrupt indicates a stored checkpoint could not be decoded.
	ErrCheckpointCorrupt = errors.New("checkpoint is corrupt")

	// ErrLockTimeout indicates a file lock could not be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for file lock")

	// ErrUnknownBackend indicates an unsupported checkpoint backend name.
	ErrUnknownBackend = errors.New("unknown checkpoint backend")
)

// Sandbox errors.
var (
	// ErrSandboxNotFound indicates the named sandbox does not exist.
	ErrSandboxNotFound = errors.New("sandbox not found")

	// ErrSandboxRuntime indicates the container runtime returned an error.
	ErrSandboxRuntime = errors.New("sandbox runtime error")

	// ErrRuntimeNotFound indicates neither docker nor podman is installed.
	ErrRuntimeNotFound = errors.New("no container runtime found")

	// ErrUnknownStack indicates no stack profile matches the requested stack type.
	ErrUnknownStack = errors.New("unknown stack type")

	// ErrFileNotFound indicates a sandbox file does not exist.
	ErrFileNotFound = errors.New("file not found in sandbox")

	// ErrInvalidPath indicates a path escapes the sandbox workdir.
	ErrInvalidPath = errors.New("invalid sandbox path")

	// ErrServerStartCommand indicates no start command could be detected.
	ErrServerStartCommand = errors.New("no server start command detected")

	// ErrProvisionFailed indicates a background provisioning job failed.
	ErrProvisionFailed = errors.New("sandbox provisioning failed")

	// ErrJobNotFound indicates an unknown provisioning job id.
	ErrJobNotFound = errors.New("provisioning job not found")

	// ErrCommandFailed indicates a sandbox command exited non-zero.
	ErrCommandFailed = errors.New("sandbox command failed")

	// ErrHealthCheckFailed indicates the application never answered its health endpoint.
	ErrHealthCheckFailed = errors.New("health check failed")
)

// Model errors.
var (
	// ErrModelInvocation indicates the model CLI failed to execute.
	ErrModelInvocation = errors.New("model invocation failed")

	// ErrModelEmpty indicates the model returned no text.
	ErrModelEmpty = errors.New("model returned empty output")

	// ErrModelMalformed indicates the model output could not be decoded.
	ErrModelMalformed = errors.New("model returned malformed output")

	// ErrModelAttemptsExhausted indicates a retry-with-feedback loop used its whole budget.
	ErrModelAttemptsExhausted = errors.New("model attempts exhausted")

	// ErrUnknownProvider indicates an unsupported model provider.
	ErrUnknownProvider = errors.New("unknown model provider")

	// ErrJSONRepair indicates text could not be parsed as JSON even after repair.
	ErrJSONRepair = errors.New("could not extract json")
)

// Workflow errors.
var (
	// ErrUnroutableStatus indicates a router received a status it has no edge for.
	ErrUnroutableStatus = errors.New("status has no route")

	// ErrTransitionCeiling indicates a session exceeded its node transition ceiling.
	ErrTransitionCeiling = errors.New("transition ceiling exceeded")

	// ErrNotInterrupted indicates approve was called on a session that is not paused.
	ErrNotInterrupted = errors.New("session is not awaiting approval")

	// ErrSessionFinished indicates the session already reached its end node.
	ErrSessionFinished = errors.New("session already finished")

	// ErrStateInvariant indicates a node update would break a workflow state invariant.
	ErrStateInvariant = errors.New("workflow state invariant violated")

	// ErrSessionFailed indicates a session finished without passing verification.
	ErrSessionFailed = errors.New("session failed")

	// ErrUnknownNode indicates a checkpoint names a node the engine does not know.
	ErrUnknownNode = errors.New("unknown workflow node")
)

// Operator interface errors.
var (
	// ErrNoMenuOptions indicates a selection prompt was given no options.
	ErrNoMenuOptions = errors.New("no options to select from")

	// ErrInvalidOutputFormat indicates an unsupported --output value.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrWatchIntervalTooShort indicates a --interval below the watch minimum.
	ErrWatchIntervalTooShort = errors.New("watch interval too short")

	// ErrWatchModeJSONUnsupported indicates --watch was combined with JSON output.
	ErrWatchModeJSONUnsupported = errors.New("watch mode does not support JSON output")
)

// ExitCode2Error wraps an error to indicate exit code 2 (invalid input) should be used.
type ExitCode2Error struct {
	Err error
}

// NewExitCode2Error wraps an error to indicate exit code 2.
func NewExitCode2Error(err error) *ExitCode2Error {
	return &ExitCode2Error{Err: err}
}

// Error implements the error interface.
func (e *ExitCode2Error) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitCode2Error) Unwrap() error {
	return e.Err
}

// IsExitCode2Error checks if an error should result in exit code 2.
func IsExitCode2Error(err error) bool {
	var e *ExitCode2Error
	return errors.As(err, &e)
}
