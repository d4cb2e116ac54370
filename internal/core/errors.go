package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed-world classification of engine failures.
// Tests and propagation policy dispatch on this instead of on dynamic
// type information or reflection.
type ErrorKind int

const (
	// ErrorKindNone marks a BuildError value that does not represent a
	// captured exception (used internally, never surfaced).
	ErrorKindNone ErrorKind = iota
	ErrorKindInvalidProjectFile
	ErrorKindInternalError
	ErrorKindTaskExecutionFailure
	ErrorKindTaskHostCrash
	ErrorKindSerializationFailure
	ErrorKindCancellation
	ErrorKindCallbackUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindInvalidProjectFile:
		return "InvalidProjectFile"
	case ErrorKindInternalError:
		return "InternalError"
	case ErrorKindTaskExecutionFailure:
		return "TaskExecutionFailure"
	case ErrorKindTaskHostCrash:
		return "TaskHostCrash"
	case ErrorKindSerializationFailure:
		return "SerializationFailure"
	case ErrorKindCancellation:
		return "Cancellation"
	case ErrorKindCallbackUnsupported:
		return "CallbackUnsupported"
	default:
		return "None"
	}
}

// ErrorCode returns the stable "E-..." string attached to logged error
// events for this kind.
func (k ErrorKind) ErrorCode() string {
	switch k {
	case ErrorKindInvalidProjectFile:
		return "E-INVALID-PROJECT-FILE"
	case ErrorKindInternalError:
		return "E-INTERNAL-ERROR"
	case ErrorKindTaskExecutionFailure:
		return "E-TASK-EXECUTION-FAILURE"
	case ErrorKindTaskHostCrash:
		return "E-TASK-HOST-CRASH"
	case ErrorKindSerializationFailure:
		return "E-SERIALIZATION-FAILURE"
	case ErrorKindCancellation:
		return "E-CANCELLATION"
	case ErrorKindCallbackUnsupported:
		return "E-CALLBACK-UNSUPPORTED"
	default:
		return ""
	}
}

// Retryable reports whether the propagation policy permits retrying
// work that failed with this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindSerializationFailure, ErrorKindTaskHostCrash:
		return true
	default:
		return false
	}
}

// Fatal reports whether this kind is fatal to the owning submission and
// must not be recovered by an OnError target.
func (k ErrorKind) Fatal() bool {
	return k == ErrorKindInternalError
}

// BuildError is the single payload type for every captured failure the
// engine reports. It replaces runtime exception reflection with a
// closed enumeration plus message/chain data.
type BuildError struct {
	Kind    ErrorKind
	Message string

	// TypeName is the original exception type name, for display and for
	// the packet-protocol exception registry. Empty for errors
	// originated inside the engine itself.
	TypeName string

	// StackTrace is best-effort and may be empty.
	StackTrace string

	// Inner is the next exception in the chain, or nil.
	Inner *BuildError

	// Cause is the underlying Go error, if any, kept for Unwrap but not
	// serialized across the wire (see packetprotocol.Exception).
	Cause error
}

// NewBuildError constructs a BuildError of the given kind.
func NewBuildError(kind ErrorKind, message string) *BuildError {
	return &BuildError{Kind: kind, Message: message}
}

// NewInvalidProjectFile wraps an evaluator failure for the originating
// BuildResult.
func NewInvalidProjectFile(message string, cause error) *BuildError {
	return &BuildError{Kind: ErrorKindInvalidProjectFile, Message: message, Cause: cause}
}

// NewInternalError constructs a fatal, non-retried engine invariant
// violation. Call sites that can return a Go error should prefer
// this over panicking.
func NewInternalError(format string, args ...any) *BuildError {
	return &BuildError{Kind: ErrorKindInternalError, Message: fmt.Sprintf(format, args...)}
}

// NewCancellation constructs the Cancellation-kind BuildError that
// describes a cooperatively cancelled build request.
func NewCancellation() *BuildError {
	return &BuildError{Kind: ErrorKindCancellation, Message: "the build request was cancelled"}
}

// NewCallbackUnsupported constructs the error logged when a task host
// attempts a coordinator callback and the coordinator never advertised
// callback support on handshake.
func NewCallbackUnsupported(method string) *BuildError {
	return &BuildError{Kind: ErrorKindCallbackUnsupported, Message: fmt.Sprintf("callback %q attempted but the coordinator does not support callbacks", method)}
}

func (e *BuildError) Error() string {
	if e == nil {
		return ""
	}
	if e.TypeName != "" {
		return fmt.Sprintf("%s: %s", e.TypeName, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying Go error, if any, then the chain.
func (e *BuildError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	if e.Inner != nil {
		return e.Inner
	}
	return nil
}

// Chain returns the exception chain from e to the root cause, inclusive.
func (e *BuildError) Chain() []*BuildError {
	var out []*BuildError
	for cur := e; cur != nil; cur = cur.Inner {
		out = append(out, cur)
	}
	return out
}

// AsBuildError classifies an arbitrary Go error into a BuildError,
// preserving an existing BuildError unchanged. Unknown error types
// become a generic InternalError with the original message retained —
// the unknown-type fallback mirrors the packet translator's handling of
// an unrecognized exception type name.
func AsBuildError(err error) *BuildError {
	if err == nil {
		return nil
	}
	var be *BuildError
	if errors.As(err, &be) {
		return be
	}
	return &BuildError{Kind: ErrorKindInternalError, Message: err.Error(), Cause: err}
}

// ClassifyError maps an error to its ErrorKind, defaulting to
// InternalError for anything not already a *BuildError.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var be *BuildError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ErrorKindInternalError
}
