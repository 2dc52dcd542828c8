// Package muxerr defines the typed error taxonomy shared by every
// transport (MCP bridge, websocket gateway, raw socket transport) so
// handlers translate errors by Kind instead of matching substrings,
// the way kojo's server.go does against err.Error().
package muxerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error into one of the five families spec.md §7
// names: Lookup, Resource, Contract, Concurrency, Transport.
type Kind string

const (
	// Lookup
	NotFound  Kind = "not_found"
	Ambiguous Kind = "ambiguous"

	// Resource
	SpawnFailed  Kind = "spawn_failed"
	PtyClosed    Kind = "pty_closed"
	ResizeFailed Kind = "resize_failed"
	OutOfPanes   Kind = "out_of_panes"

	// Contract
	InvalidArgument    Kind = "invalid_argument"
	Unsupported        Kind = "unsupported"
	SequencedMismatch  Kind = "sequenced_mismatch"

	// Concurrency
	UserPriorityActive  Kind = "user_priority_active"
	UserPriorityTimeout Kind = "user_priority_timeout"
	TransactionConflict Kind = "transaction_conflict"

	// Transport
	Disconnected    Kind = "disconnected"
	FrameDecodeError Kind = "frame_decode_error"
	Timeout         Kind = "timeout"
)

// Error carries a Kind plus arbitrary structured fields (e.g.
// retry_after_ms for UserPriorityActive) alongside the wrapped cause.
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]any
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, muxerr.NotFound-shaped sentinel) style checks
// work by comparing Kind when the target is also a *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that wraps cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// WithField attaches a structured field and returns the receiver for
// chaining, e.g. muxerr.New(muxerr.UserPriorityActive, "locked").WithField("retry_after_ms", 250).
func (e *Error) WithField(key string, val any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = val
	return e
}

// KindOf extracts the Kind from err, returning ok=false if err is not
// (or does not wrap) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
