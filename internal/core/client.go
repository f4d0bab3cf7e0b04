package core

import (
	"time"

	"github.com/google/uuid"
)

// Canceller requests cooperative cancellation of a task that is currently
// executing. Pool implements it; Client holds one so AsyncResult.Revoke
// can reach running attempts, not just queued ones.
type Canceller interface {
	RequestCancel(taskID string) bool
}

// Client is the thin producer-facing facade over Queue + ResultBackend
// described in spec.md §4.7. It also implements Spawner, so a TaskContext
// can hand it straight to TaskContext.SpawnSubtask.
type Client struct {
	queue     *Queue
	backend   ResultBackend
	executor  Executor
	canceller Canceller
}

// NewClient constructs a Client. executor, if nil, defaults to a
// goroutineExecutor used to run chain/chord orchestrators and
// AsyncResult.Then monitors (spec.md §9: "represent as jobs submitted to
// an executor... never detach without tracking").
func NewClient(queue *Queue, backend ResultBackend, executor Executor) *Client {
	if executor == nil {
		executor = NewGoroutineExecutor()
	}
	return &Client{queue: queue, backend: backend, executor: executor}
}

// Submit enqueues task as-is and returns its id.
func (c *Client) Submit(task *Task) (string, error) {
	return c.queue.Enqueue(task)
}

// SubmitTask constructs a task from name/payload/cfg and submits it —
// spec.md §4.7's submit(name, payload) overload.
func (c *Client) SubmitTask(name string, payload *Payload, cfg Config) (*AsyncResult, error) {
	task, err := NewTask(name, payload, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := c.Submit(task); err != nil {
		return nil, err
	}
	return NewAsyncResult(task.ID(), c.backend, c), nil
}

// SubmitLater submits task with its ETA set to now+delay, spec.md §4.7's
// submit_later.
func (c *Client) SubmitLater(task *Task, delay time.Duration) (string, error) {
	task.SetETA(time.Now().Add(delay))
	return c.Submit(task)
}

// SubmitBatch submits every task in tasks, stopping at the first error and
// returning the ids successfully enqueued so far alongside it.
func (c *Client) SubmitBatch(tasks []*Task) ([]string, error) {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := c.Submit(t)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Result wraps taskID in an AsyncResult bound to this client's backend.
func (c *Client) Result(taskID string) *AsyncResult {
	return NewAsyncResult(taskID, c.backend, c)
}

// SetCanceller injects the pool's cancellation lookup, called once by the
// facade after constructing both Client and Pool over the same Queue.
func (c *Client) SetCanceller(canceller Canceller) { c.canceller = canceller }

// Revoke implements spec.md §4.8 AsyncResult.Revoke: it marks the task
// cancelled in the backend, marks it cancelled in the queue if still queued
// (it is not removed from the queue), and requests cooperative
// cancellation if it is already running. It never
// forcibly stops an in-flight attempt.
func (c *Client) Revoke(taskID string) {
	_ = c.backend.StoreState(noCancelCtx(), taskID, StateCancelled)
	c.queue.Cancel(taskID)
	if c.canceller != nil {
		c.canceller.RequestCancel(taskID)
	}
}

// CancelByTag cancels every queued task carrying tag, returning the count
// affected (spec.md §4.3 cancel_by_tag).
func (c *Client) CancelByTag(tag string) int { return c.queue.CancelByTag(tag) }

// newWorkflowID mints a fresh id for a chain/chord virtual parent task,
// the way a regular task would via uuid.NewString (spec.md §3.4).
func newWorkflowID() string { return uuid.NewString() }
