package taskflow

import (
	"context"
	"sync"
	"time"

	"github.com/taskflow-go/taskflow/internal/core"
)

// TaskSystem is the top-level facade: it wires the queue, result backend,
// handler registry, worker pool, client, scheduler, and monitor together
// and exposes a single lifecycle. Construction order matches spec.md §5:
// "Client, queue, and backend are created first; workers start last;
// shutdown reverses this order."
type TaskSystem struct {
	cfg SystemConfig

	backend     core.ResultBackend
	logger      Logger
	metricsSink MetricsSink
	executor    Executor
	tracerName  string

	queue    *core.Queue
	registry *core.HandlerRegistry
	client   *core.Client
	pool     *core.Pool
	monitor  *core.Monitor
	scheduler *core.Scheduler

	cleanupStop chan struct{}
	cleanupDone chan struct{}
	startOnce   sync.Once
	stopOnce    sync.Once
}

// New constructs a TaskSystem from cfg and opts, but does not start
// workers — call Start for that.
func New(cfg SystemConfig, opts ...Option) *TaskSystem {
	s := &TaskSystem{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend == nil {
		s.backend = core.NewMemoryBackend()
	}
	if s.executor == nil {
		s.executor = core.NewGoroutineExecutor()
	}

	s.queue = core.NewQueue(cfg.QueueCapacity)
	s.registry = core.NewHandlerRegistry()
	s.client = core.NewClient(s.queue, s.backend, s.executor)

	poolCfg := core.PoolConfig{
		Concurrency:            cfg.Concurrency,
		QueueNames:             cfg.QueueNames,
		DequeueTimeout:         cfg.DequeueTimeout,
		CancelGrace:            cfg.CancelGrace,
		HeartbeatInterval:      cfg.HeartbeatInterval,
		RetryOnHandlerNotFound: cfg.RetryOnHandlerNotFound,
	}
	s.pool = core.NewPool(poolCfg, s.queue, s.backend, s.registry)
	if s.logger != nil {
		s.pool.SetLogger(s.logger)
	}
	if s.metricsSink != nil {
		s.pool.SetMetricsSink(s.metricsSink)
	}
	s.pool.SetSpawner(core.SpawnerFunc(s.client.Submit))
	s.client.SetCanceller(s.pool)
	if s.tracerName != "" {
		s.pool.SetTracer(core.NewOtelSpanRecorder(s.tracerName))
	}

	s.monitor = core.NewMonitor(s.queue, s.pool)
	s.pool.SetEventSink(s.monitor)

	s.scheduler = core.NewScheduler(s.client)

	return s
}

// RegisterHandler associates name with h. Safe to call before or after
// Start.
func (s *TaskSystem) RegisterHandler(name string, h Handler) {
	s.registry.Register(name, h)
}

// RegisterHandlerFunc is a convenience wrapper for plain functions.
func (s *TaskSystem) RegisterHandlerFunc(name string, f func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error)) {
	s.registry.RegisterFunc(name, core.HandlerFunc(f))
}

// Client returns the producer-facing submission facade: Submit,
// SubmitTask, SubmitLater, SubmitBatch, Chain, Chord, Result.
func (s *TaskSystem) Client() *core.Client { return s.client }

// Scheduler returns the named periodic/cron schedule manager.
func (s *TaskSystem) Scheduler() *core.Scheduler { return s.scheduler }

// Monitor returns the read-only queue/worker/task aggregator.
func (s *TaskSystem) Monitor() *core.Monitor { return s.monitor }

// Start launches the worker pool and the background cleanup sweep. Start
// may only be called once.
func (s *TaskSystem) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.pool.Start(ctx)
		if s.cfg.CleanupInterval > 0 {
			s.cleanupStop = make(chan struct{})
			s.cleanupDone = make(chan struct{})
			s.runCleanupLoop()
		}
	})
}

// runCleanupLoop submits the periodic result-backend sweep through the
// injected Executor, the same way chain/chord orchestrators are; when
// there is no Executor or it rejects the job, the loop runs on a plain
// untracked goroutine.
func (s *TaskSystem) runCleanupLoop() {
	job := func() {
		defer close(s.cleanupDone)
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.cleanupStop:
				return
			case <-ticker.C:
				_ = s.backend.CleanupExpired(context.Background(), s.cfg.CleanupMaxAge)
			}
		}
	}
	if s.executor != nil {
		if err := s.executor.Execute(job); err == nil {
			return
		}
	}
	go job()
}

// Stop signals the worker pool and cleanup loop and waits for in-flight
// tasks to finish without a deadline.
func (s *TaskSystem) Stop() {
	s.stopOnce.Do(func() {
		s.stopCleanup()
		s.pool.Stop()
	})
}

// ShutdownGraceful signals the worker pool and cleanup loop and waits up
// to timeout, then keeps waiting for running attempts, which are not
// interrupted (see core.Pool.ShutdownGraceful).
func (s *TaskSystem) ShutdownGraceful(timeout time.Duration) {
	s.stopOnce.Do(func() {
		s.stopCleanup()
		s.pool.ShutdownGraceful(timeout)
	})
}

func (s *TaskSystem) stopCleanup() {
	if s.cleanupStop == nil {
		return
	}
	close(s.cleanupStop)
	<-s.cleanupDone
}
