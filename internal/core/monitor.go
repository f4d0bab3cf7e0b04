package core

import (
	"sort"
	"sync"
	"time"
)

// QueueStats is one named queue's snapshot, spec.md §4.10 queue_stats.
type QueueStats struct {
	Name    string
	Pending int
	Running int
	Delayed int
}

// TaskSnapshot is a read-only view of a task surfaced by Monitor's listing
// operations.
type TaskSnapshot struct {
	ID        string
	Name      string
	State     State
	QueueName string
	WorkerID  string
	Progress  float64
	CreatedAt time.Time
}

// TaskStartedHandler/TaskCompletedHandler/TaskFailedHandler/
// WorkerOfflineHandler are the event fan-out subscriber shapes spec.md
// §4.10 names. Handlers run synchronously inside the notifying goroutine
// and MUST return quickly.
type TaskStartedHandler func(task *Task)
type TaskCompletedHandler func(task *Task)
type TaskFailedHandler func(task *Task, err error)
type WorkerOfflineHandler func(workerID string)

// Monitor is the read-only aggregator from spec.md §4.10: it taps the
// queue, backend and pool and fans lifecycle events out to subscribers. It
// implements EventSink so a Pool can be wired to notify it directly.
type Monitor struct {
	queue *Queue
	pool  *Pool

	mu              sync.Mutex
	running         map[string]*Task // taskID -> task, while running
	failedHistory   []*Task
	maxFailedHist   int

	onStarted   []TaskStartedHandler
	onCompleted []TaskCompletedHandler
	onFailed    []TaskFailedHandler
	onOffline   []WorkerOfflineHandler
}

// NewMonitor constructs a Monitor over queue and pool.
func NewMonitor(queue *Queue, pool *Pool) *Monitor {
	return &Monitor{
		queue:         queue,
		pool:          pool,
		running:       make(map[string]*Task),
		maxFailedHist: 1000,
	}
}

// QueueStatsFor returns the snapshot for one named queue.
func (m *Monitor) QueueStatsFor(name string) QueueStats {
	m.queue.mu.Lock()
	delayed := 0
	for _, it := range m.queue.delayed.items {
		if it.task.Config().QueueName == name {
			delayed++
		}
	}
	m.queue.mu.Unlock()
	return QueueStats{
		Name:    name,
		Pending: m.queue.QueueSize(name),
		Delayed: delayed,
		Running: m.runningCountFor(name),
	}
}

func (m *Monitor) runningCountFor(queueName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.running {
		if t.Config().QueueName == queueName {
			n++
		}
	}
	return n
}

// Workers returns a per-worker health snapshot.
func (m *Monitor) Workers() []WorkerInfo { return m.pool.WorkerStats() }

// ListActiveTasks returns a snapshot of every task currently running.
func (m *Monitor) ListActiveTasks() []TaskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskSnapshot, 0, len(m.running))
	for _, t := range m.running {
		out = append(out, snapshot(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPendingTasks returns a snapshot of every task currently sitting in
// queueName's ready heap, spec.md §4.10's list_pending_tasks(queue).
func (m *Monitor) ListPendingTasks(queueName string) []TaskSnapshot {
	tasks := m.queue.PendingTasks(queueName)
	out := make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, snapshot(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListFailedTasks returns up to limit of the most recently failed tasks,
// most recent first.
func (m *Monitor) ListFailedTasks(limit int) []TaskSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.failedHistory)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]TaskSnapshot, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, snapshot(m.failedHistory[i]))
	}
	return out
}

func snapshot(t *Task) TaskSnapshot {
	progress, _ := t.Progress()
	return TaskSnapshot{
		ID:        t.ID(),
		Name:      t.Name(),
		State:     t.State(),
		QueueName: t.Config().QueueName,
		WorkerID:  t.WorkerID(),
		Progress:  progress,
		CreatedAt: t.CreatedAt(),
	}
}

// OnTaskStarted registers a subscriber fired on every task transition to
// running.
func (m *Monitor) OnTaskStarted(h TaskStartedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStarted = append(m.onStarted, h)
}

// OnTaskCompleted registers a subscriber fired on every successful terminal.
func (m *Monitor) OnTaskCompleted(h TaskCompletedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCompleted = append(m.onCompleted, h)
}

// OnTaskFailed registers a subscriber fired when a task the pool runs (or
// abandons on shutdown) ends failed or cancelled. A task cancelled while
// still queued, or found expired on dequeue, does not fire it.
func (m *Monitor) OnTaskFailed(h TaskFailedHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFailed = append(m.onFailed, h)
}

// OnWorkerOffline registers a subscriber fired when a worker goroutine
// exits.
func (m *Monitor) OnWorkerOffline(h WorkerOfflineHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, h)
}

// NotifyTaskStarted implements EventSink.
func (m *Monitor) NotifyTaskStarted(task *Task) {
	m.mu.Lock()
	m.running[task.ID()] = task
	handlers := append([]TaskStartedHandler(nil), m.onStarted...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(task)
	}
}

// NotifyTaskCompleted implements EventSink.
func (m *Monitor) NotifyTaskCompleted(task *Task) {
	m.mu.Lock()
	delete(m.running, task.ID())
	handlers := append([]TaskCompletedHandler(nil), m.onCompleted...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(task)
	}
}

// NotifyTaskFailed implements EventSink.
func (m *Monitor) NotifyTaskFailed(task *Task, err error) {
	m.mu.Lock()
	delete(m.running, task.ID())
	m.failedHistory = append(m.failedHistory, task)
	if len(m.failedHistory) > m.maxFailedHist {
		m.failedHistory = m.failedHistory[len(m.failedHistory)-m.maxFailedHist:]
	}
	handlers := append([]TaskFailedHandler(nil), m.onFailed...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(task, err)
	}
}

// NotifyWorkerOffline implements EventSink.
func (m *Monitor) NotifyWorkerOffline(workerID string) {
	m.mu.Lock()
	handlers := append([]WorkerOfflineHandler(nil), m.onOffline...)
	m.mu.Unlock()
	for _, h := range handlers {
		h(workerID)
	}
}
