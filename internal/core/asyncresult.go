package core

import (
	"context"
	"sync"
	"time"
)

// pollCadence bounds Wait's backoff, per spec.md §4.8: "polls is_ready with
// a back-off bounded by a 100ms cadence."
const pollCadence = 100 * time.Millisecond

// SuccessCallback/FailureCallback are the two branches Then registers.
type SuccessCallback func(result *Payload)
type FailureCallback func(err error)

// AsyncResult is the cheap, copyable user-facing handle from spec.md §4.8:
// a (task_id, backend) pair plus, for Revoke/Then orchestration, a
// reference to the owning Client.
type AsyncResult struct {
	taskID  string
	backend ResultBackend
	client  *Client

	thenOnce sync.Once
}

// NewAsyncResult constructs a handle for taskID. client may be nil for a
// read-only handle (Revoke and Then then degrade: Revoke becomes a direct
// backend write, Then still works since it only needs the backend).
func NewAsyncResult(taskID string, backend ResultBackend, client *Client) *AsyncResult {
	return &AsyncResult{taskID: taskID, backend: backend, client: client}
}

// TaskID returns the id this handle refers to.
func (a *AsyncResult) TaskID() string { return a.taskID }

// State returns the task's current state, or "" if not found.
func (a *AsyncResult) State() State {
	s, err := a.backend.GetState(noCancelCtx(), a.taskID)
	if err != nil {
		return ""
	}
	return s
}

// IsReady reports whether the task has reached a terminal state.
func (a *AsyncResult) IsReady() bool { return a.State().Terminal() }

// IsSuccessful reports state == succeeded.
func (a *AsyncResult) IsSuccessful() bool { return a.State() == StateSucceeded }

// IsFailed reports state == failed.
func (a *AsyncResult) IsFailed() bool { return a.State() == StateFailed }

// IsCancelled reports state == cancelled.
func (a *AsyncResult) IsCancelled() bool { return a.State() == StateCancelled }

// Progress returns the last recorded progress value.
func (a *AsyncResult) Progress() float64 {
	p, _, err := a.backend.GetProgress(noCancelCtx(), a.taskID)
	if err != nil {
		return 0
	}
	return p
}

// ProgressMessage returns the last recorded progress message.
func (a *AsyncResult) ProgressMessage() string {
	_, msg, err := a.backend.GetProgress(noCancelCtx(), a.taskID)
	if err != nil {
		return ""
	}
	return msg
}

// Get delegates to ResultBackend.WaitForResult, spec.md §4.8.
func (a *AsyncResult) Get(timeout time.Duration) (*Payload, error) {
	state, result, err := a.backend.WaitForResult(context.Background(), a.taskID, timeout)
	if err != nil {
		return nil, err
	}
	switch state {
	case StateSucceeded:
		return result, nil
	case StateFailed:
		msg, _, _ := a.backend.GetError(noCancelCtx(), a.taskID)
		return nil, NewError(KindHandlerError, errString(msg))
	case StateCancelled:
		return nil, ErrCancelled
	case StateExpired:
		return nil, NewError(KindTimeout, errString("task expired before execution"))
	default:
		return nil, ErrTimeout
	}
}

// Wait polls IsReady with a back-off bounded by pollCadence until the task
// is terminal or timeout elapses, per spec.md §4.8 (a simpler fallback
// alongside Get, which blocks on the backend directly instead of polling).
func (a *AsyncResult) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	delay := 5 * time.Millisecond
	for {
		if a.IsReady() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(delay)
		if delay < pollCadence {
			delay *= 2
			if delay > pollCadence {
				delay = pollCadence
			}
		}
	}
}

// Then registers onSuccess/onFailure, spec.md §4.8. If the task is already
// terminal, the matching callback fires synchronously. Otherwise a single
// monitor job — submitted to the client's Executor, falling back to a
// plain goroutine that nothing tracks if no client is attached or the
// Executor refuses the job — polls the backend until
// terminal and fires exactly one callback; sync.Once makes repeated Then
// calls after terminal still single-shot, mirroring
// ygrebnov-workers/error_forwarder.go's "cancel then forward exactly once"
// shape.
func (a *AsyncResult) Then(onSuccess SuccessCallback, onFailure FailureCallback) {
	if a.IsReady() {
		a.fireOnce(onSuccess, onFailure)
		return
	}
	monitor := func() {
		for !a.IsReady() {
			time.Sleep(pollCadence)
		}
		a.fireOnce(onSuccess, onFailure)
	}
	if a.client != nil && a.client.executor != nil {
		if err := a.client.executor.Execute(monitor); err == nil {
			return
		}
	}
	go monitor()
}

func (a *AsyncResult) fireOnce(onSuccess SuccessCallback, onFailure FailureCallback) {
	a.thenOnce.Do(func() {
		switch a.State() {
		case StateSucceeded:
			if onSuccess != nil {
				result, _ := a.backend.GetResult(noCancelCtx(), a.taskID)
				onSuccess(result)
			}
		default:
			if onFailure != nil {
				_, err := a.Get(0)
				onFailure(err)
			}
		}
	})
}

// Revoke marks the task cancelled, in the backend and (if still queued) in
// the queue, where it stays until a worker dequeues and discards it, and
// requests cooperative cancellation if already running. It never
// forcibly stops an in-flight attempt (spec.md §4.8).
func (a *AsyncResult) Revoke() {
	if a.client != nil {
		a.client.Revoke(a.taskID)
		return
	}
	_ = a.backend.StoreState(noCancelCtx(), a.taskID, StateCancelled)
}

type plainError string

func (e plainError) Error() string { return string(e) }

func errString(s string) error {
	if s == "" {
		s = "task failed"
	}
	return plainError(s)
}
