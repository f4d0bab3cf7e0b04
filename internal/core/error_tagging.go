package core

import (
	"errors"
	"fmt"
)

// TaskMetaError exposes the task identity and attempt number a handler
// failure occurred on, so a Monitor or log sink can correlate it without
// re-threading context through every call site.
type TaskMetaError interface {
	error
	Unwrap() error
	TaskID() (string, bool)
	Attempt() (int, bool)
}

type taskTaggedError struct {
	err     error
	taskID  string
	attempt int
}

// TagTaskError wraps err with the task id and attempt number it occurred
// on. Returns nil when err is nil, so it is safe to call unconditionally
// at the attempt boundary.
func TagTaskError(err error, taskID string, attempt int) error {
	if err == nil {
		return nil
	}
	return &taskTaggedError{err: err, taskID: taskID, attempt: attempt}
}

func (e *taskTaggedError) Error() string { return e.err.Error() }
func (e *taskTaggedError) Unwrap() error { return e.err }

func (e *taskTaggedError) TaskID() (string, bool) {
	if e.taskID == "" {
		return "", false
	}
	return e.taskID, true
}

func (e *taskTaggedError) Attempt() (int, bool) { return e.attempt, true }

func (e *taskTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "task(id=%s,attempt=%d): %+v", e.taskID, e.attempt, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractTaskID returns the task id carried by err, if any.
func ExtractTaskID(err error) (string, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskID()
	}
	return "", false
}

// ExtractAttempt returns the attempt number carried by err, if any.
func ExtractAttempt(err error) (int, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.Attempt()
	}
	return 0, false
}
