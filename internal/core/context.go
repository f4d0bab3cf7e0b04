package core

import (
	"sync"
	"time"
)

// LogEntry is one structured line appended by TaskContext.LogInfo/Warning/
// Error and surfaced to Monitor subscribers.
type LogEntry struct {
	Level   string
	Message string
	At      time.Time
}

// Spawner submits a child task on behalf of a running handler. It is
// injected rather than letting TaskContext hold a reference back to the
// client, breaking the shared_ptr-style cycle spec.md §9 flags between
// task, context, and spawner.
type Spawner interface {
	Submit(task *Task) (string, error)
}

// SpawnerFunc adapts a plain function to Spawner.
type SpawnerFunc func(task *Task) (string, error)

// Submit calls f.
func (f SpawnerFunc) Submit(task *Task) (string, error) { return f(task) }

// TaskContext is the per-execution handle passed to a Handler (spec.md
// §4.5). It carries a non-owning reference to the Task being executed —
// TaskContext never owns the Task and never outlives the attempt it was
// created for.
type TaskContext struct {
	mu sync.Mutex

	task      *Task
	backend   ResultBackend
	spawner   Spawner
	logger    Logger
	attempt   int
	startedAt time.Time

	cancelled  bool
	checkpoint *Payload
	history    []LogEntry
}

// NewTaskContext constructs a TaskContext for one execution attempt of
// task. checkpoint, if non-nil, is the prior attempt's saved checkpoint,
// carried forward so handlers can resume.
func NewTaskContext(task *Task, backend ResultBackend, spawner Spawner, logger Logger, attempt int, checkpoint *Payload) *TaskContext {
	if logger == nil {
		logger = NoopLogger{}
	}
	return &TaskContext{
		task:       task,
		backend:    backend,
		spawner:    spawner,
		logger:     logger,
		attempt:    attempt,
		startedAt:  time.Now(),
		checkpoint: checkpoint,
	}
}

// Task returns a read-only reference to the task under execution.
func (c *TaskContext) Task() *Task { return c.task }

// Attempt returns the 1-based attempt number this context was created for.
func (c *TaskContext) Attempt() int { return c.attempt }

// StartTime returns when this attempt began.
func (c *TaskContext) StartTime() time.Time { return c.startedAt }

// Elapsed returns the duration since this attempt began.
func (c *TaskContext) Elapsed() time.Duration { return time.Since(c.startedAt) }

// UpdateProgress clamps p into [0,1] and writes it to the task and (best
// effort) to the result backend. It adds no entry to History.
// A backend write failure is logged and does not fail the call — spec.md
// §7 requires losing a state write to never deadlock the worker.
func (c *TaskContext) UpdateProgress(p float64, msg string) {
	c.task.SetProgress(p, msg)
	if c.backend != nil {
		clamped, _ := c.task.Progress()
		if err := c.backend.StoreProgress(noCancelCtx(), c.task.ID(), clamped, msg); err != nil {
			c.logger.Log(LevelWarn, "store progress failed: "+err.Error())
		}
	}
}

// SaveCheckpoint stores container as the task's checkpoint. It is
// persisted via the context/task itself, not the backend, and is copied
// into the next attempt's context by the worker loop on retry.
func (c *TaskContext) SaveCheckpoint(container *Payload) {
	c.mu.Lock()
	c.checkpoint = container
	c.mu.Unlock()
	c.task.SaveCheckpoint(container)
}

// LoadCheckpoint returns the checkpoint carried into this attempt, if any.
func (c *TaskContext) LoadCheckpoint() (*Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkpoint == nil {
		return nil, false
	}
	return c.checkpoint, true
}

// HasCheckpoint reports whether a checkpoint is available.
func (c *TaskContext) HasCheckpoint() bool {
	_, ok := c.LoadCheckpoint()
	return ok
}

// SpawnSubtask submits task through the injected spawner and records the
// child id on the parent task for later retrieval.
func (c *TaskContext) SpawnSubtask(task *Task) (string, error) {
	if c.spawner == nil {
		return "", NewError(KindNotSupported, errSpawnerUnset)
	}
	id, err := c.spawner.Submit(task)
	if err != nil {
		return "", err
	}
	c.task.RecordSubtask(id)
	return id, nil
}

// RequestCancel sets the cooperative cancellation flag observed by
// IsCancelled. It is called by the worker pool on timeout or explicit
// revoke; it never forcibly stops the handler.
func (c *TaskContext) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// IsCancelled reports whether cancellation was requested — either by the
// worker pool on timeout (RequestCancel, this attempt only) or externally
// via AsyncResult.Revoke/CancelByTag (Task.CancelRequested, which survives
// across retries). Handlers SHOULD poll this at natural suspension points.
func (c *TaskContext) IsCancelled() bool {
	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()
	return cancelled || c.task.CancelRequested()
}

func (c *TaskContext) log(level Level, msg string) {
	c.mu.Lock()
	c.history = append(c.history, LogEntry{Level: string(level), Message: msg, At: time.Now()})
	c.mu.Unlock()
	c.logger.Log(level, msg)
}

// LogInfo appends an info-level structured entry visible to monitors.
func (c *TaskContext) LogInfo(msg string) { c.log(LevelInfo, msg) }

// LogWarning appends a warning-level structured entry.
func (c *TaskContext) LogWarning(msg string) { c.log(LevelWarn, msg) }

// LogError appends an error-level structured entry.
func (c *TaskContext) LogError(msg string) { c.log(LevelError, msg) }

// History returns a snapshot of entries appended by LogInfo/Warning/Error.
func (c *TaskContext) History() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.history))
	copy(out, c.history)
	return out
}
