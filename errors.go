package taskflow

import "github.com/taskflow-go/taskflow/internal/core"

// Kind classifies a taskflow error (spec.md §7). It re-exports
// core.Kind so facade callers never need to import internal/core
// themselves.
type Kind = core.Kind

const (
	KindInvalidArgument = core.KindInvalidArgument
	KindNotFound        = core.KindNotFound
	KindQueueFull       = core.KindQueueFull
	KindShutdown        = core.KindShutdown
	KindTimeout         = core.KindTimeout
	KindCancelled       = core.KindCancelled
	KindHandlerError    = core.KindHandlerError
	KindInternal        = core.KindInternal
	KindNotSupported    = core.KindNotSupported
)

// KindOf extracts the Kind from err, defaulting to KindInternal.
func KindOf(err error) Kind { return core.KindOf(err) }

var (
	ErrInvalidTask     = core.ErrInvalidTask
	ErrQueueFull       = core.ErrQueueFull
	ErrNotFound        = core.ErrNotFound
	ErrHandlerNotFound = core.ErrHandlerNotFound
	ErrShuttingDown    = core.ErrShuttingDown
	ErrTimeout         = core.ErrTimeout
	ErrCancelled       = core.ErrCancelled
)
