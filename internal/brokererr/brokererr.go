// Package brokererr defines the error-kind taxonomy the HTTP and WebSocket
// surfaces consult to pick a status code or close code. Callers should use
// errors.Is against the sentinel Kind values, not type assertions.
package brokererr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure without pinning down a concrete type.
type Kind string

const (
	CapacityExceeded Kind = "capacity_exceeded"
	NotFound         Kind = "not_found"
	InvalidArgument  Kind = "invalid_argument"
	PtySpawnFailure  Kind = "pty_spawn_failure"
	PtyIoError       Kind = "pty_io_error"
	Unauthorized     Kind = "unauthorized"
	Forbidden        Kind = "forbidden"
)

// Error pairs a Kind with a human-readable message and, optionally, the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Error makes Kind usable as the target of errors.Is(err, brokererr.NotFound).
func (k Kind) Error() string { return string(k) }

// Is allows errors.Is(err, brokererr.CapacityExceeded) to work by comparing
// kinds directly, without requiring callers to construct an *Error value.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Of reports the Kind of err, and whether err carries one at all.
func Of(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}
