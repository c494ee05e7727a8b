package llm

import (
	"errors"
	"fmt"

	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// ErrorKind classifies a ModelError.
type ErrorKind string

// Model error kinds.
const (
	// KindInvocation means the provider could not be reached or crashed.
	KindInvocation ErrorKind = "invocation"

	// KindEmpty means the provider answered with no text.
	KindEmpty ErrorKind = "empty"

	// KindMalformed means the text could not be decoded into the expected shape.
	KindMalformed ErrorKind = "malformed"

	// KindExhausted means a retry-with-feedback loop used its whole budget.
	KindExhausted ErrorKind = "exhausted"
)

// ModelError is the typed failure of a model call. Nodes use errors.As to
// decide whether to retry, degrade, or fail the session.
type ModelError struct {
	Node     string
	Kind     ErrorKind
	Attempts int
	Err      error
}

// Error implements error.
func (e *ModelError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: model %s after %d attempts: %v", e.Node, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: model %s: %v", e.Node, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is maps kinds onto the package-level sentinels.
func (e *ModelError) Is(target error) bool {
	switch e.Kind {
	case KindInvocation:
		return target == forgeerrors.ErrModelInvocation
	case KindEmpty:
		return target == forgeerrors.ErrModelEmpty
	case KindMalformed:
		return target == forgeerrors.ErrModelMalformed
	case KindExhausted:
		return target == forgeerrors.ErrModelAttemptsExhausted
	default:
		return false
	}
}

// AsModelError unwraps err into a *ModelError, wrapping foreign errors as invocation failures.
func AsModelError(node string, err error) *ModelError {
	if err == nil {
		return nil
	}
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	return &ModelError{Node: node, Kind: KindInvocation, Attempts: 1, Err: err}
}
