// Package taskerr defines the closed error taxonomy shared by the
// orchestrator components. Callers branch on Kind with errors.As rather than
// matching message strings.
package taskerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindWorkerStart means the underlying platform rejected worker creation.
	KindWorkerStart Kind = "WORKER_START"
	// KindWorkerNotAvailable means the local topology is at capacity for the
	// requested task type.
	KindWorkerNotAvailable Kind = "WORKER_NOT_AVAILABLE"
	KindTaskNotFound       Kind = "TASK_NOT_FOUND"
	KindTaskTypeMismatch   Kind = "TASK_TYPE_MISMATCH"
	// KindConfigFingerprint means a malformed tokenizer or preprocessing
	// option was rejected before any fit work started.
	KindConfigFingerprint Kind = "CONFIG_FINGERPRINT"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}
