// Package status defines the status-code taxonomy shared by every primitive
// in taskrt: Watch, Grant, Task, and the model checker all report outcomes
// through a Code plus an *Error wrapping it, rather than ad-hoc sentinel
// errors, so callers can use a single errors.Is/errors.As vocabulary across
// the whole library.
package status

import (
	"errors"
	"fmt"
)

// Code is a closed enumeration of outcomes. The first block of values is
// numerically compatible with the common "canonical" status codes (0-16);
// the remainder are taskrt-specific extensions.
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated

	// Closed indicates a primitive (Watch, Grant) was torn down while a
	// caller was waiting on it, with no more specific code applicable.
	Closed
	// GrantUnavailable indicates a non-blocking Grant/Issuer acquisition
	// could not be satisfied immediately.
	GrantUnavailable
	// LoopBreak is used internally by iteration helpers to signal early
	// termination without it being an error.
	LoopBreak
	// EndOfStream indicates a Watch closed after reaching a value that the
	// producer considers a normal, successful end.
	EndOfStream
	// ClosedBeforeEndOfStream indicates a Watch closed before reaching any
	// value the producer would have considered a normal end.
	ClosedBeforeEndOfStream
	// GrantRevoked indicates an operation targeted a Grant whose Revoke
	// method had already been called (or whose size Watch otherwise closed).
	GrantRevoked
)

var names = map[Code]string{
	OK:                      "ok",
	Cancelled:               "cancelled",
	Unknown:                 "unknown",
	InvalidArgument:         "invalid_argument",
	DeadlineExceeded:        "deadline_exceeded",
	NotFound:                "not_found",
	AlreadyExists:           "already_exists",
	PermissionDenied:        "permission_denied",
	ResourceExhausted:       "resource_exhausted",
	FailedPrecondition:      "failed_precondition",
	Aborted:                 "aborted",
	OutOfRange:              "out_of_range",
	Unimplemented:           "unimplemented",
	Internal:                "internal",
	Unavailable:             "unavailable",
	DataLoss:                "data_loss",
	Unauthenticated:         "unauthenticated",
	Closed:                  "closed",
	GrantUnavailable:        "grant_unavailable",
	LoopBreak:               "loop_break",
	EndOfStream:             "end_of_stream",
	ClosedBeforeEndOfStream: "closed_before_end_of_stream",
	GrantRevoked:            "grant_revoked",
}

// String implements fmt.Stringer.
func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error pairs a Code with a human-readable message and an optional cause.
// It is the one error type used across taskrt's recoverable error paths:
// resource-unavailable, closed/revoked, cancelled.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New constructs an *Error with no message, just a code. This is the common
// case: callers match on Code via Is, and rarely need a message.
func New(code Code) *Error {
	return &Error{Code: code}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new *Error with the given code.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Code, e.Cause)
		}
		return e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches target against e.Code when target is itself an *Error,
// allowing errors.Is(err, status.New(status.Closed)) style checks that
// ignore message/cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// Of extracts the Code from err, defaulting to Unknown for non-*Error
// values and OK for a nil error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Unknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return Of(err) == code
}

// Fatal represents a precondition violation: a programming error that the
// source treats as fatal (abort the process), not a value to propagate.
// Constructors that detect a violated invariant panic with a *Fatal rather
// than returning an error, mirroring the original's BATT_CHECK/BATT_PANIC
// behavior (§7 "Precondition violation").
type Fatal struct {
	Message string
	Stack   []byte
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("taskrt: fatal precondition violation: %s", f.Message)
}

// Panic raises a *Fatal carrying a captured stack trace for diagnosis.
func Panic(format string, args ...any) {
	panic(&Fatal{
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	})
}
