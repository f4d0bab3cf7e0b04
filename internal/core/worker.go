package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// executeAttempt runs steps 2-7 of the worker loop in spec.md §4.6 for one
// dequeued task. It never lets a misbehaving handler kill the worker
// goroutine: a panic inside Handle is recovered and converted to an
// internal error for retry purposes (spec.md §9).
func (p *Pool) executeAttempt(ctx context.Context, workerID string, task *Task) {
	bg := noCancelCtx()

	if task.State() == StateExpired {
		if err := p.backend.StoreState(bg, task.ID(), StateExpired); err != nil {
			p.logger.Log(LevelWarn, "store expired state failed: "+err.Error())
		}
		return
	}
	if task.State() == StateCancelled {
		p.storeTerminal(task)
		return
	}

	task.SetWorkerID(workerID)
	task.MarkRunning()
	p.active.Store(task.ID(), task)
	defer p.active.Delete(task.ID())
	attempt := task.AttemptCount()
	if err := p.backend.StoreState(bg, task.ID(), StateRunning); err != nil {
		p.logger.Log(LevelWarn, "store running state failed: "+err.Error())
	}
	p.metrics.RecordJobStarted(task.Name())
	p.events.NotifyTaskStarted(task)

	handler, ok := p.registry.Lookup(task.Name())
	if !ok {
		p.handleFailure(task, NewError(KindNotFound, ErrHandlerNotFound), p.cfg.RetryOnHandlerNotFound)
		return
	}

	checkpoint, _ := task.Checkpoint()
	tc := NewTaskContext(task, p.backend, p.spawner, p.logger, attempt, checkpoint)

	cfg := task.Config()
	deadline := task.StartedAt().Add(cfg.Timeout)
	attemptCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if p.tracer != nil {
		var span trace.Span
		attemptCtx, span = p.tracer.StartAttemptSpan(attemptCtx, task, attempt)
		task.SetTraceID(span.SpanContext().TraceID().String())
		defer span.End()
	}

	type outcome struct {
		result *Payload
		err    error
	}
	resCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- outcome{err: NewError(KindInternal, fmt.Errorf("panic: %v", r))}
			}
		}()
		result, err := handler.Handle(attemptCtx, task, tc)
		resCh <- outcome{result: result, err: err}
	}()

	select {
	case out := <-resCh:
		p.finishAttempt(task, tc, out.result, out.err)
		return
	case <-attemptCtx.Done():
	}

	// Deadline reached: request cooperative cancellation, then wait the
	// configured grace window for the handler to notice and return.
	tc.RequestCancel()
	select {
	case out := <-resCh:
		p.finishAttempt(task, tc, out.result, out.err)
	case <-time.After(p.cfg.CancelGrace):
		// Force-terminate policy (spec.md §4.5/§9 Open Question): the
		// handler goroutine is abandoned, not killed; resCh is buffered so
		// its eventual write never blocks. The attempt is handled as an
		// ErrTimeout failure: retried if retries remain, else failed.
		if task.CancelRequested() {
			task.MarkCancelled()
			p.storeTerminal(task)
			p.events.NotifyTaskFailed(task, ErrCancelled)
			return
		}
		p.handleFailure(task, ErrTimeout, true)
	}
}

// finishAttempt dispatches a handler's actual return value to the success
// or failure path, checking for an observed cooperative cancellation first
// since spec.md §4.6's "running --cancel observed--> cancelled" edge
// bypasses retry entirely.
func (p *Pool) finishAttempt(task *Task, tc *TaskContext, result *Payload, err error) {
	if err == nil {
		p.handleSuccess(task, tc, result)
		return
	}
	if task.CancelRequested() {
		task.MarkCancelled()
		p.storeTerminal(task)
		p.events.NotifyTaskFailed(task, ErrCancelled)
		return
	}
	p.handleFailure(task, err, true)
}

func (p *Pool) handleSuccess(task *Task, tc *TaskContext, result *Payload) {
	task.MarkSucceeded(result)
	p.storeTerminal(task)
	p.events.NotifyTaskCompleted(task)
	p.metrics.RecordJobSucceeded(task.Name(), tc.Elapsed())
}

// handleFailure implements spec.md §4.6 step 7's err branch: retry if
// should_retry(), else terminal failed. retryable gates whether this
// failure kind is eligible for retry at all (handler_not_found is not,
// unless explicitly configured).
func (p *Pool) handleFailure(task *Task, cause error, retryable bool) {
	msg := cause.Error()
	traceback := p.formatTraceback(task, cause)

	if retryable && task.WouldRetryAfterFailure() {
		task.MarkRetryingWithError(msg, traceback)
		delay := task.NextRetryDelay()
		task.SetETA(time.Now().Add(delay))
		if err := p.backend.StoreState(noCancelCtx(), task.ID(), StateRetrying); err != nil {
			p.logger.Log(LevelWarn, "store retrying state failed: "+err.Error())
		}
		p.metrics.RecordJobRetried(task.Name(), task.AttemptCount())
		if _, err := p.queue.Enqueue(task); err != nil {
			// Queue rejected the retry (e.g. shut down): fall back to a
			// terminal failure rather than losing the task silently.
			task.MarkFailed(msg, traceback)
			p.storeTerminal(task)
			p.events.NotifyTaskFailed(task, cause)
		}
		return
	}

	task.MarkFailed(msg, traceback)
	p.storeTerminal(task)
	p.events.NotifyTaskFailed(task, cause)
	p.metrics.RecordJobFailed(task.Name(), 0, KindOf(cause))
}

// formatTraceback builds the attempt's error_traceback field (spec.md
// §3.1), tagging the failure with the task id and attempt number via
// TagTaskError. The scratch buffer is borrowed from the pool package's
// object pool rather than allocated fresh per attempt.
func (p *Pool) formatTraceback(task *Task, cause error) string {
	tagged := TagTaskError(cause, task.ID(), task.AttemptCount())
	scratch := p.ctxPool.Get().(*scratchBuffer)
	defer p.ctxPool.Put(scratch)
	scratch.traceback = append(scratch.traceback[:0], []byte(fmt.Sprintf("%+v", tagged))...)
	return string(scratch.traceback)
}

// storeTerminal persists a task's terminal state and its result or error
// to the backend. Backend write failures are logged, never fatal — spec.md
// §7: "losing a state write MUST NOT cause the worker to deadlock."
func (p *Pool) storeTerminal(task *Task) {
	bg := noCancelCtx()
	state := task.State()
	switch state {
	case StateSucceeded:
		if result, ok := task.Result(); ok {
			if err := p.backend.StoreResult(bg, task.ID(), result); err != nil {
				p.logger.Log(LevelWarn, "store result failed: "+err.Error())
			}
		}
	case StateFailed:
		if msg, tb, ok := task.Error(); ok {
			if err := p.backend.StoreError(bg, task.ID(), msg, tb); err != nil {
				p.logger.Log(LevelWarn, "store error failed: "+err.Error())
			}
		}
	}
	if err := p.backend.StoreState(bg, task.ID(), state); err != nil {
		p.logger.Log(LevelWarn, "store terminal state failed: "+err.Error())
	}
}
