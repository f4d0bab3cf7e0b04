package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskflow-go/taskflow/pool"
)

// PoolConfig configures a Pool (C6, spec.md §4.6).
type PoolConfig struct {
	// Concurrency is N, the number of long-lived worker goroutines.
	Concurrency int

	// QueueNames lists the queues a worker drains, in declared priority
	// order, with round-robin fairness across workers when top priorities
	// tie (spec.md §4.6 step 1).
	QueueNames []string

	// DequeueTimeout bounds each poll of the queue for a ready task.
	DequeueTimeout time.Duration

	// CancelGrace is the grace window a worker waits after requesting
	// cancellation (on timeout or explicit revoke) before abandoning the
	// attempt (spec.md §4.5).
	CancelGrace time.Duration

	// RetryOnHandlerNotFound honors retry rules when task_name has no
	// registered handler. Default: false (spec.md §4.6 step 4).
	RetryOnHandlerNotFound bool

	// HeartbeatInterval*3 is the "healthy" window WorkerStats (and so
	// Monitor.Workers) applies to each worker's last heartbeat; workers
	// record a heartbeat after each dequeue poll and around each attempt.
	HeartbeatInterval time.Duration
}

// DefaultPoolConfig returns sane defaults: 4 workers draining "default",
// matching spec.md §3.1's default queue_name.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:       4,
		QueueNames:        []string{"default"},
		DequeueTimeout:     time.Second,
		CancelGrace:        2 * time.Second,
		HeartbeatInterval:  5 * time.Second,
	}
}

// heartbeat is the read-only-from-outside worker health record Monitor
// polls via Pool.WorkerStats.
type heartbeat struct {
	mu           sync.RWMutex
	queues       []string
	activeTasks  int
	lastBeat     time.Time
	jobsDone     int64
}

// WorkerInfo is the snapshot Monitor.Workers() surfaces per worker.
type WorkerInfo struct {
	ID            string
	Queues        []string
	ActiveTasks   int
	LastHeartbeat time.Time
	Healthy       bool
}

// Pool is the worker pool / task execution engine: N cooperative executors
// matching tasks to handlers (spec.md §4.6).
type Pool struct {
	cfg      PoolConfig
	queue    *Queue
	backend  ResultBackend
	registry *HandlerRegistry
	logger   Logger
	metrics  MetricsSink
	events   EventSink
	spawner  Spawner
	tracer   *OtelSpanRecorder // optional; nil means no span per attempt
	ctxPool  pool.Pool         // reusable scratch objects for attempt execution

	wg        sync.WaitGroup
	lifecycle *shutdownCoordinator
	started   atomic.Bool

	heartbeats sync.Map // workerID -> *heartbeat
	active     sync.Map // taskID -> *Task, tracked only while running
}

// RequestCancel implements Canceller: it looks up taskID among the tasks
// currently being executed and asks it to stop cooperatively. Returns
// false if the task is not currently running on this pool (e.g. it is
// still queued — the Client handles that case via Queue.Cancel — or
// already terminal).
func (p *Pool) RequestCancel(taskID string) bool {
	v, ok := p.active.Load(taskID)
	if !ok {
		return false
	}
	v.(*Task).RequestCancel()
	return true
}

// NewPool constructs a Pool. backend, registry are required; logger,
// metrics and events default to no-ops; spawner stays nil until
// SetSpawner injects one, typically the Client's Submit
// (TaskContext.SpawnSubtask needs a submission path back into the queue).
func NewPool(cfg PoolConfig, queue *Queue, backend ResultBackend, registry *HandlerRegistry) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if len(cfg.QueueNames) == 0 {
		cfg.QueueNames = []string{"default"}
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = 2 * time.Second
	}
	p := &Pool{
		cfg:      cfg,
		queue:    queue,
		backend:  backend,
		registry: registry,
		logger:   NoopLogger{},
		metrics:  NoopMetricsSink{},
		events:   noopEventSink{},
		ctxPool:  pool.NewFixed(uint(cfg.Concurrency), func() interface{} { return &scratchBuffer{} }),
	}
	p.lifecycle = newShutdownCoordinator(&p.wg)
	return p
}

// scratchBuffer is reused across attempts to avoid allocating a fresh
// traceback buffer per task, the way ygrebnov-workers/pool reuses worker
// objects rather than worker structs per task. Bounded to cfg.Concurrency
// via pool.NewFixed, since at most that many attempts run at once.
type scratchBuffer struct {
	traceback []byte
}

// SetLogger injects a Logger; nil is rejected silently (no-op stays).
func (p *Pool) SetLogger(l Logger) {
	if l != nil {
		p.logger = l
	}
}

// SetMetricsSink injects a MetricsSink.
func (p *Pool) SetMetricsSink(m MetricsSink) {
	if m != nil {
		p.metrics = m
	}
}

// SetEventSink injects an EventSink (typically a Monitor).
func (p *Pool) SetEventSink(e EventSink) {
	if e != nil {
		p.events = e
	}
}

// SetSpawner injects the Spawner TaskContext.SpawnSubtask delegates to.
func (p *Pool) SetSpawner(s Spawner) { p.spawner = s }

// SetTracer injects an OtelSpanRecorder so every attempt gets a span.
// Nil (the default) skips span creation entirely.
func (p *Pool) SetTracer(t *OtelSpanRecorder) { p.tracer = t }

// Start launches Concurrency worker goroutines. Start may only be called
// once; subsequent calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := workerID(i)
		hb := &heartbeat{queues: p.cfg.QueueNames, lastBeat: time.Now()}
		p.heartbeats.Store(id, hb)
		p.wg.Add(1)
		go p.runDispatchLoop(ctx, id, hb, i)
	}
}

// Stop signals all workers and waits for them to exit without a deadline;
// in-flight attempts are allowed to run to completion.
func (p *Pool) Stop() { p.lifecycle.Close() }

// ShutdownGraceful signals all workers and waits up to timeout for
// in-flight tasks. Past the timeout it keeps waiting: an attempt already
// running is not interrupted and runs until its handler returns or its
// own task timeout fires. Only a task dequeued after the signal is
// recorded as failed(shutdown) without running.
func (p *Pool) ShutdownGraceful(timeout time.Duration) {
	p.lifecycle.CloseGraceful(timeout)
}

// WorkerStats returns a snapshot of every worker's health, for Monitor.
func (p *Pool) WorkerStats() []WorkerInfo {
	var out []WorkerInfo
	p.heartbeats.Range(func(key, value any) bool {
		id := key.(string)
		hb := value.(*heartbeat)
		hb.mu.RLock()
		info := WorkerInfo{
			ID:            id,
			Queues:        hb.queues,
			ActiveTasks:   hb.activeTasks,
			LastHeartbeat: hb.lastBeat,
			Healthy:       time.Since(hb.lastBeat) < 3*p.cfg.HeartbeatInterval,
		}
		hb.mu.RUnlock()
		out = append(out, info)
		return true
	})
	return out
}

func (hb *heartbeat) beat(activeDelta int) {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.lastBeat = time.Now()
	hb.activeTasks += activeDelta
}

func (hb *heartbeat) jobDone() {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.jobsDone++
}
