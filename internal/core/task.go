package core

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is one of the task lifecycle states from spec.md §3.1/§4.6.
type State string

const (
	StatePending   State = "pending"
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateRetrying  State = "retrying"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Terminal reports whether s is one of the terminal states. Terminal states
// are final: no further state writes are ever observed for the task.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// Priority is a four-level ordinal. Higher values win at dequeue time.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Config carries the per-task execution policy described in spec.md §3.1.
type Config struct {
	Timeout                time.Duration
	MaxRetries             int
	RetryDelay             time.Duration
	RetryBackoffMultiplier float64
	Priority               Priority
	ETA                    *time.Time
	Expires                *time.Duration
	QueueName              string
	Tags                   []string
}

// DefaultConfig mirrors the defaults named in spec.md §3.1.
func DefaultConfig() Config {
	return Config{
		Timeout:                5 * time.Minute,
		MaxRetries:             0,
		RetryDelay:             0,
		RetryBackoffMultiplier: 1.0,
		Priority:               PriorityNormal,
		QueueName:              "default",
	}
}

// maxRetryDelay is the backoff ceiling spec.md §4.2 and §5 both name.
const maxRetryDelay = time.Hour

// Task is the system's unit of work: identity, config, state, timing,
// payload, and result/error. Ownership transitions from producer to queue
// to worker to result backend as described in spec.md §3.1.
type Task struct {
	mu sync.RWMutex

	id      string
	name    string
	config  Config
	state   State
	payload *Payload

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	attemptCount int
	progress     float64
	progressMsg  string

	result       *Payload
	errorMessage string
	errorTrace   string

	// WorkerID, CorrelationID, ParentTaskID and TraceID supplement the
	// distilled spec.md fields per original_source/include/.../task.h and
	// vasic-digital-SuperAgent's Task — see SPEC_FULL.md §3.5.
	workerID      string
	correlationID string
	parentTaskID  string
	traceID       string

	spawnedSubtasks []string
	checkpoint      *Payload

	cancelRequested bool
}

// NewTask constructs a Task via the builder-style validation spec.md §4.2
// requires: non-empty name, MaxRetries >= 0, Timeout > 0,
// RetryBackoffMultiplier >= 1.0.
func NewTask(name string, payload *Payload, cfg Config) (*Task, error) {
	if name == "" {
		return nil, ErrEmptyTaskName
	}
	if cfg.MaxRetries < 0 {
		return nil, NewError(KindInvalidArgument, errInvalidField("max_retries must be >= 0"))
	}
	if cfg.Timeout <= 0 {
		return nil, NewError(KindInvalidArgument, errInvalidField("timeout must be > 0"))
	}
	if cfg.RetryBackoffMultiplier < 1.0 {
		return nil, NewError(KindInvalidArgument, errInvalidField("retry_backoff_multiplier must be >= 1.0"))
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "default"
	}
	if payload == nil {
		payload = NewPayload()
	}

	return &Task{
		id:        uuid.NewString(),
		name:      name,
		config:    cfg,
		state:     StatePending,
		payload:   payload,
		createdAt: time.Now(),
	}, nil
}

func errInvalidField(msg string) error { return &fieldError{msg: msg} }

type fieldError struct{ msg string }

func (e *fieldError) Error() string { return e.msg }

// ID returns the task's process-unique identifier.
func (t *Task) ID() string { return t.id }

// Name returns the handler selector.
func (t *Task) Name() string { return t.name }

// Config returns a copy of the task's execution config.
func (t *Task) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}

// Payload returns the task's input payload.
func (t *Task) Payload() *Payload {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.payload
}

// SetETA overrides the task's scheduled eligibility time — used by the
// worker pool to re-enqueue a retrying task at now+backoff while
// preserving its attempt count.
func (t *Task) SetETA(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	eta := at
	t.config.ETA = &eta
}

// SetPayload replaces the task's input payload — used by chain to feed a
// predecessor's result into the next child before resubmission.
func (t *Task) SetPayload(p *Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payload = p
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// SetParent records the workflow id this task was spawned for, without the
// parent holding a reference back — breaks the shared_ptr cycle spec.md
// §9 flags.
func (t *Task) SetParent(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parentTaskID = workflowID
}

// ParentTaskID returns the workflow id this task was spawned for, if any.
func (t *Task) ParentTaskID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.parentTaskID
}

// SetCorrelationID records an opaque id linking related tasks.
func (t *Task) SetCorrelationID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.correlationID = id
}

// CorrelationID returns the id set by SetCorrelationID, if any.
func (t *Task) CorrelationID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.correlationID
}

// SetWorkerID records which worker is (or was last) executing this task.
func (t *Task) SetWorkerID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.workerID = id
}

// WorkerID returns the id set by SetWorkerID, if any.
func (t *Task) WorkerID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.workerID
}

// SetTraceID records the trace id of the span the worker pool starts for
// this task's attempt when a tracer is attached.
func (t *Task) SetTraceID(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traceID = id
}

// TraceID returns the id set by SetTraceID, if any.
func (t *Task) TraceID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.traceID
}

// transition moves the task to a new state. Callers are expected to only
// call this along the edges enumerated in spec.md §4.6; it does not itself
// validate the edge, since the queue and worker pool are the only callers
// and already encode the legal transition graph.
func (t *Task) transition(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() {
		// Terminal states are final: spec.md §8 invariant 3.
		return
	}
	t.state = s
	switch s {
	case StateRunning:
		t.startedAt = time.Now()
		t.attemptCount++
	case StateSucceeded, StateFailed, StateCancelled, StateExpired:
		t.completedAt = time.Now()
	}
}

// MarkQueued transitions pending/retrying -> queued.
func (t *Task) MarkQueued() { t.transition(StateQueued) }

// MarkRunning transitions queued -> running, bumping AttemptCount.
func (t *Task) MarkRunning() { t.transition(StateRunning) }

// MarkRetrying transitions running -> retrying (failed with retries left).
func (t *Task) MarkRetrying() { t.transition(StateRetrying) }

// MarkSucceeded transitions running -> succeeded and stores the result.
func (t *Task) MarkSucceeded(result *Payload) {
	t.mu.Lock()
	t.result = result
	t.mu.Unlock()
	t.transition(StateSucceeded)
}

// MarkFailed transitions running -> failed and stores the error.
func (t *Task) MarkFailed(msg, traceback string) {
	t.mu.Lock()
	t.errorMessage = msg
	t.errorTrace = traceback
	t.mu.Unlock()
	t.transition(StateFailed)
}

// MarkCancelled transitions queued/running -> cancelled.
func (t *Task) MarkCancelled() { t.transition(StateCancelled) }

// MarkExpired transitions queued -> expired.
func (t *Task) MarkExpired() { t.transition(StateExpired) }

// AttemptCount returns the number of queued->running transitions observed
// so far — spec.md §8 invariant 2.
func (t *Task) AttemptCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.attemptCount
}

// CreatedAt returns the time the task was constructed.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// StartedAt returns the time the task last entered StateRunning, or the
// zero time if it never has.
func (t *Task) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// CompletedAt returns the time the task entered a terminal state, or the
// zero time if it has not yet terminated.
func (t *Task) CompletedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completedAt
}

// Result returns the stored result, present iff State() == StateSucceeded.
func (t *Task) Result() (*Payload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != StateSucceeded {
		return nil, false
	}
	return t.result, true
}

// Error returns the stored error message/traceback, present iff State() is
// StateFailed (or transiently StateRetrying).
func (t *Task) Error() (msg, traceback string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state != StateFailed && t.state != StateRetrying {
		return "", "", false
	}
	return t.errorMessage, t.errorTrace, true
}

// SetProgress clamps p into [0,1] and records it along with msg.
func (t *Task) SetProgress(p float64, msg string) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = p
	t.progressMsg = msg
}

// Progress returns the last recorded progress value and message.
func (t *Task) Progress() (float64, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress, t.progressMsg
}

// ShouldRetry implements spec.md §4.2's should_retry(): true when the
// state is failed or retrying and attempt_count < max_retries.
func (t *Task) ShouldRetry() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return (t.state == StateFailed || t.state == StateRetrying) && t.attemptCount < t.config.MaxRetries
}

// WouldRetryAfterFailure answers should_retry() for a running task that is
// about to fail, before any state write happens: attempt_count <
// max_retries. The worker pool uses this to pick between the
// running->retrying and running->failed edges directly, since §4.6's state
// diagram never routes a retry through the terminal failed state.
func (t *Task) WouldRetryAfterFailure() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.attemptCount < t.config.MaxRetries
}

// MarkRetryingWithError transitions running -> retrying, recording the
// triggering error transiently (spec.md §3.1: error fields are present iff
// failed or, transiently, retrying).
func (t *Task) MarkRetryingWithError(msg, traceback string) {
	t.mu.Lock()
	t.errorMessage = msg
	t.errorTrace = traceback
	t.mu.Unlock()
	t.transition(StateRetrying)
}

// NextRetryDelay implements spec.md §4.2:
// next_retry_delay = min(retry_delay * multiplier^attempt, 1h).
func (t *Task) NextRetryDelay() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d := float64(t.config.RetryDelay) * math.Pow(t.config.RetryBackoffMultiplier, float64(t.attemptCount))
	if d <= 0 {
		return 0
	}
	if d > float64(maxRetryDelay) {
		return maxRetryDelay
	}
	return time.Duration(d)
}

// IsExpired implements spec.md §4.2:
// is_expired() = expires.is_some() && now >= created_at + expires.
func (t *Task) IsExpired() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.config.Expires == nil {
		return false
	}
	deadline := t.createdAt.Add(*t.config.Expires)
	now := time.Now()
	return now.After(deadline) || now.Equal(deadline)
}

// Eligible reports whether the task's ETA, if any, has passed as of now.
func (t *Task) Eligible(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.config.ETA == nil {
		return true
	}
	return !now.Before(*t.config.ETA)
}

// HasTag reports whether tag is present in the task's tag set.
func (t *Task) HasTag(tag string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tg := range t.config.Tags {
		if tg == tag {
			return true
		}
	}
	return false
}

// SaveCheckpoint stores handler-opaque progress state that survives within
// a single task across retries (spec.md §4.5); it is copied forward by the
// worker loop into the next attempt's TaskContext, never sent to the
// backend.
func (t *Task) SaveCheckpoint(p *Payload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checkpoint = p
}

// Checkpoint returns the last saved checkpoint, if any.
func (t *Task) Checkpoint() (*Payload, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.checkpoint == nil {
		return nil, false
	}
	return t.checkpoint, true
}

// RequestCancel records an explicit, out-of-band cancellation request
// (e.g. AsyncResult.Revoke or CancelByTag). It is cooperative: the worker
// executing this task's attempt observes it via CancelRequested/
// TaskContext.IsCancelled and must return from the handler on its own.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelRequested = true
}

// CancelRequested reports whether RequestCancel was called for this task.
func (t *Task) CancelRequested() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelRequested
}

// RecordSubtask appends a spawned child task id for later retrieval.
func (t *Task) RecordSubtask(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spawnedSubtasks = append(t.spawnedSubtasks, id)
}

// Subtasks returns the ids of tasks spawned from this task's context.
func (t *Task) Subtasks() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.spawnedSubtasks))
	copy(out, t.spawnedSubtasks)
	return out
}
