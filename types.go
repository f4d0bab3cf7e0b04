package taskflow

import "github.com/taskflow-go/taskflow/internal/core"

// These aliases re-export the engine's public vocabulary so callers never
// need to import internal/core directly; TaskSystem is the only type in
// this package that constructs them.
type (
	Task         = core.Task
	Payload      = core.Payload
	Config       = core.Config
	State        = core.State
	Priority     = core.Priority
	Handler      = core.Handler
	HandlerFunc  = core.HandlerFunc
	TaskContext  = core.TaskContext
	AsyncResult  = core.AsyncResult
	Logger       = core.Logger
	MetricsSink  = core.MetricsSink
	Executor     = core.Executor
	QueueStats   = core.QueueStats
	WorkerInfo   = core.WorkerInfo
	TaskSnapshot = core.TaskSnapshot
	Level        = core.Level
	LogEntry     = core.LogEntry
)

const (
	LevelInfo  = core.LevelInfo
	LevelWarn  = core.LevelWarn
	LevelError = core.LevelError
)

const (
	StatePending   = core.StatePending
	StateQueued    = core.StateQueued
	StateRunning   = core.StateRunning
	StateSucceeded = core.StateSucceeded
	StateFailed    = core.StateFailed
	StateRetrying  = core.StateRetrying
	StateCancelled = core.StateCancelled
	StateExpired   = core.StateExpired

	PriorityLow      = core.PriorityLow
	PriorityNormal   = core.PriorityNormal
	PriorityHigh     = core.PriorityHigh
	PriorityCritical = core.PriorityCritical
)

// NewPayload constructs an empty Payload.
func NewPayload() *Payload { return core.NewPayload() }

// DefaultConfig returns the default Task config (spec.md §3.1).
func DefaultConfig() Config { return core.DefaultConfig() }

// NewTask builds a validated Task ready for submission.
func NewTask(name string, payload *Payload, cfg Config) (*Task, error) {
	return core.NewTask(name, payload, cfg)
}
