// Package otellerr provides the typed error taxonomy shared across otell's
// ingest, store, and transport layers.
package otellerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to map it onto a transport
// status (HTTP code, gRPC status, or the query protocol's Error variant).
type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	Config          Kind = "config"
	Parse           Kind = "parse"
	Store           Kind = "store"
	Ingest          Kind = "ingest"
	Io              Kind = "io"
	Internal        Kind = "internal"
)

// Error is a Kind-tagged error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs a bare Error of the given Kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf constructs a bare Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an existing error.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Wrapf attaches a Kind and formatted message to an existing error.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// otherwise Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
