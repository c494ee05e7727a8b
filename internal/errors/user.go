package errors

import "errors"

// ErrorInfo holds user-facing message and suggested action for an error.
type ErrorInfo struct {
	// Message is the user-friendly error description.
	Message string
	// Action is a suggested action to resolve the issue (empty if none).
	Action string
}

type errorEntry struct {
	err  error
	info ErrorInfo
}

// errorInfoEntries maps sentinels to their user-facing messages.
// A slice, not a map, because wrapped errors need errors.Is() traversal.
//
//nolint:gochecknoglobals // Pre-built mapping
var errorInfoEntries = []errorEntry{
	{
		err: ErrThreadNotFound,
		info: ErrorInfo{
			Message: "No session exists with that thread id.",
			Action:  "Run 'forge list' to see known sessions.",
		},
	},
	{
		err: ErrCheckpointCorrupt,
		info: ErrorInfo{
			Message: "The stored checkpoint could not be read.",
			Action:  "Purge the session with 'forge purge' and start a new run.",
		},
	},
	{
		err: ErrLockTimeout,
		info: ErrorInfo{
			Message: "Another forge process holds the checkpoint lock.",
			Action:  "Wait for the other process to finish and retry.",
		},
	},
	{
		err: ErrRuntimeNotFound,
		info: ErrorInfo{
			Message: "Neither docker nor podman was found on PATH.",
			Action:  "Install a container runtime or set sandbox.runtime to 'local'.",
		},
	},
	{
		err: ErrSandboxRuntime,
		info: ErrorInfo{
			Message: "The container runtime reported an error.",
			Action:  "Check that the docker daemon is running.",
		},
	},
	{
		err: ErrUnknownStack,
		info: ErrorInfo{
			Message: "No stack profile matches the requested stack.",
			Action:  "Use one of node, python, go, static, or define it in sandbox.profiles_file.",
		},
	},
	{
		err: ErrModelInvocation,
		info: ErrorInfo{
			Message: "The model CLI could not be invoked.",
			Action:  "Verify the provider CLI is installed and authenticated.",
		},
	},
	{
		err: ErrNotInterrupted,
		info: ErrorInfo{
			Message: "That session is not paused at an approval point.",
			Action:  "Run 'forge status' to see where the session is.",
		},
	},
	{
		err: ErrSessionFinished,
		info: ErrorInfo{
			Message: "That session has already finished.",
		},
	},
	{
		err: ErrInvalidConfig,
		info: ErrorInfo{
			Message: "The configuration is invalid.",
			Action:  "Fix the reported field in ~/.forge/config.yaml or .forge/config.yaml.",
		},
	},
	{
		err: ErrUserCanceled,
		info: ErrorInfo{
			Message: "Canceled.",
		},
	},
}

func getErrorInfo(err error) ErrorInfo {
	for _, entry := range errorInfoEntries {
		if errors.Is(err, entry.err) {
			return entry.info
		}
	}
	return ErrorInfo{Message: err.Error()}
}

// UserMessage returns a user-friendly message for common errors.
// For unrecognized errors, it returns the error's original message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return getErrorInfo(err).Message
}

// Actionable returns a user-friendly message with a suggested action.
// The action is empty when there is nothing the user can do.
func Actionable(err error) (message, action string) {
	if err == nil {
		return "", ""
	}
	info := getErrorInfo(err)
	return info.Message, info.Action
}
