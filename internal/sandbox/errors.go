package sandbox

import (
	"errors"
	"fmt"
)

// ErrKind classifies sandbox failures. The pipeline surfaces the kind to
// the user verbatim; invalid-return-shape is kept distinct so it can
// inform a later transformer regeneration.
type ErrKind string

// Sandbox failure kinds.
const (
	KindTimeout            ErrKind = "timeout"
	KindMemoryExceeded     ErrKind = "memory-exceeded"
	KindRuntimeException   ErrKind = "runtime-exception"
	KindInvalidReturnShape ErrKind = "invalid-return-shape"
)

// Error is a structured sandbox failure. Every failure mode of an
// invocation - a throw, a runaway loop, unbounded allocation, a
// non-serializable or contract-violating return - is reported as an
// *Error, never as a host-level panic and never as a partial result.
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sandbox %s: %s", e.Kind, e.Message)
}

func errf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the sandbox error kind of err, or empty string if err
// is not a sandbox error.
func KindOf(err error) ErrKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
