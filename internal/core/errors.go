package core

import (
	"errors"
	"fmt"
)

// Namespace prefixes every sentinel error's message for easy grepping in logs.
const Namespace = "taskflow"

// Kind classifies an error into one of the taxonomy buckets from the
// specification's error handling design. Kind is intentionally a small,
// closed set of strings rather than an int enum so log lines stay readable
// without a lookup table.
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindQueueFull       Kind = "queue_full"
	KindShutdown        Kind = "shutdown"
	KindTimeout         Kind = "timeout"
	KindCancelled       Kind = "cancelled"
	KindHandlerError    Kind = "handler_error"
	KindInternal        Kind = "internal"
	KindNotSupported    Kind = "not_supported"
)

// Error wraps an underlying error with a Kind so callers can branch on
// failure category without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return Namespace + ": " + string(e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", Namespace, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a Kind-tagged error. A nil underlying err still produces
// a non-nil *Error carrying only the Kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// carries no taxonomy information (e.g. a raw panic value converted via
// fmt.Errorf at the attempt boundary).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrInvalidTask      = NewError(KindInvalidArgument, errors.New("invalid task"))
	ErrEmptyTaskName    = NewError(KindInvalidArgument, errors.New("task name must not be empty"))
	ErrQueueFull        = NewError(KindQueueFull, errors.New("queue capacity exceeded"))
	ErrNotFound         = NewError(KindNotFound, errors.New("not found"))
	ErrHandlerNotFound  = NewError(KindNotFound, errors.New("handler not found"))
	ErrShuttingDown     = NewError(KindShutdown, errors.New("subsystem is shutting down"))
	ErrTimeout          = NewError(KindTimeout, errors.New("deadline expired"))
	ErrCancelled        = NewError(KindCancelled, errors.New("task cancelled"))
	ErrNoSubscribers    = NewError(KindNotFound, errors.New("no matching subscribers"))
	ErrSubscriptionGone = NewError(KindNotFound, errors.New("subscription not found"))
)
