package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Queue is the priority task queue described in spec.md §4.3: O(log n)
// insertion/extraction of the highest-priority, immediately-eligible task
// across possibly many named queues, plus bounded-latency release of
// delayed tasks.
//
// Internal structure mirrors spec.md exactly: one 4-way... in practice a
// binary max-heap (container/heap, as The-Skyscape-workspace's and
// go-ethereum/erigon's task queues do) per named queue, keyed by
// (priority, -eta_or_created_at, -insert_seq), plus one delayed-task
// min-heap keyed by ETA whose head drives a timer. A daemon goroutine
// moves delayed entries into their owning priority heap when due and
// broadcasts to blocked dequeuers.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queues   map[string]*priorityHeap
	delayed  *delayedHeap
	capacity int
	total    int
	seq      uint64

	closed  bool
	closeCh chan struct{}
}

// NewQueue constructs a Queue with the given total outstanding-task
// capacity. capacity <= 0 means unbounded.
func NewQueue(capacity int) *Queue {
	q := &Queue{
		queues:   make(map[string]*priorityHeap),
		delayed:  &delayedHeap{},
		capacity: capacity,
		closeCh:  make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(q.delayed)
	go q.runDelayedDaemon()
	return q
}

type queueItem struct {
	task  *Task
	eta   time.Time // effective ordering key: ETA if set, else CreatedAt
	seq   uint64
	index int
}

// priorityHeap orders by (priority desc, eta asc, seq asc) — spec.md §4.3's
// three-level tiebreak.
type priorityHeap struct {
	items []*queueItem
}

func (h priorityHeap) Len() int { return len(h.items) }

func (h priorityHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	pa, pb := a.task.Config().Priority, b.task.Config().Priority
	if pa != pb {
		return pa > pb // strictly higher priority wins
	}
	if !a.eta.Equal(b.eta) {
		return a.eta.Before(b.eta) // earlier eta/created_at wins
	}
	return a.seq < b.seq // FIFO tiebreak
}

func (h priorityHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *priorityHeap) Push(x any) {
	it := x.(*queueItem)
	it.index = len(h.items)
	h.items = append(h.items, it)
}

func (h *priorityHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return it
}

// delayedHeap is a min-heap over ETA across all queues, used solely to
// drive the release daemon.
type delayedHeap struct {
	items []*queueItem
}

func (h delayedHeap) Len() int            { return len(h.items) }
func (h delayedHeap) Less(i, j int) bool  { return h.items[i].eta.Before(h.items[j].eta) }
func (h delayedHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *delayedHeap) Push(x any)         { h.items = append(h.items, x.(*queueItem)) }
func (h *delayedHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return it
}

// Enqueue validates and inserts task. A task with a future ETA is held in
// the delayed heap until due; otherwise it is placed directly into its
// named priority heap.
func (q *Queue) Enqueue(task *Task) (string, error) {
	if task.Name() == "" {
		return "", ErrInvalidTask
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", ErrShuttingDown
	}
	if q.capacity > 0 && q.total >= q.capacity {
		return "", ErrQueueFull
	}

	cfg := task.Config()
	eta := task.CreatedAt()
	if cfg.ETA != nil {
		eta = *cfg.ETA
	}

	q.seq++
	item := &queueItem{task: task, eta: eta, seq: q.seq}
	task.MarkQueued()
	q.total++

	if cfg.ETA != nil && cfg.ETA.After(time.Now()) {
		heap.Push(q.delayed, item)
	} else {
		q.pushReady(cfg.QueueName, item)
	}
	q.cond.Broadcast()

	return task.ID(), nil
}

func (q *Queue) pushReady(queueName string, item *queueItem) {
	ph, ok := q.queues[queueName]
	if !ok {
		ph = &priorityHeap{}
		heap.Init(ph)
		q.queues[queueName] = ph
	}
	heap.Push(ph, item)
}

// Dequeue blocks up to timeout for a ready task on queueName. Returns
// (nil, nil) on timeout or shutdown, matching spec.md §4.3's "optional"
// contract expressed as (task, error) in Go.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Task, error) {
	// A single background timer wakes the condition variable once, either
	// on ctx cancellation or on timeout; cancel releases it early so it
	// never leaks past this call.
	timerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	woke := make(chan struct{})
	go func() {
		<-timerCtx.Done()
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
		close(woke)
	}()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return nil, nil
		}
		if ph, ok := q.queues[queueName]; ok && ph.Len() > 0 {
			item := heap.Pop(ph).(*queueItem)
			q.total--
			if item.task.IsExpired() {
				item.task.MarkExpired()
			}
			return item.task, nil
		}
		if timerCtx.Err() != nil {
			return nil, nil
		}
		q.cond.Wait()
	}
}

// DequeueAny polls queueNames in the given order with per-iteration
// fairness: spec.md §4.6 step 1 requires workers to "poll in declared queue
// order" with "round-robin tiebreak when all queues have equal top
// priorities". start rotates the starting index across calls so no queue
// is permanently favored when priorities tie.
func (q *Queue) DequeueAny(ctx context.Context, queueNames []string, start int, timeout time.Duration) (*Task, string, error) {
	if len(queueNames) == 0 {
		return nil, "", nil
	}
	if len(queueNames) == 1 {
		t, err := q.Dequeue(ctx, queueNames[0], timeout)
		return t, queueNames[0], err
	}

	deadline := time.Now().Add(timeout)
	const pollInterval = 10 * time.Millisecond
	for {
		if name, ok := q.peekBest(queueNames, start); ok {
			t, err := q.Dequeue(ctx, name, 0)
			if t != nil || err != nil {
				return t, name, err
			}
		}
		if time.Now().After(deadline) {
			return nil, "", nil
		}
		select {
		case <-ctx.Done():
			return nil, "", nil
		case <-time.After(pollInterval):
		}
	}
}

// peekBest returns the name of the queue (among queueNames, rotated to
// start at index start) whose head has the highest priority, or ok=false
// if all are empty.
func (q *Queue) peekBest(queueNames []string, start int) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(queueNames)
	bestIdx := -1
	var bestItem *queueItem
	for i := 0; i < n; i++ {
		name := queueNames[(start+i)%n]
		ph, ok := q.queues[name]
		if !ok || ph.Len() == 0 {
			continue
		}
		candidate := ph.items[0]
		if bestItem == nil || candidate.task.Config().Priority > bestItem.task.Config().Priority {
			bestItem = candidate
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return "", false
	}
	return queueNames[(start+bestIdx)%n], true
}

func comparePriorityItems(a, b *queueItem) bool {
	pa, pb := a.task.Config().Priority, b.task.Config().Priority
	if pa != pb {
		return pa > pb
	}
	if !a.eta.Equal(b.eta) {
		return a.eta.Before(b.eta)
	}
	return a.seq < b.seq
}

// runDelayedDaemon moves delayed entries into their owning priority heap
// once their ETA elapses and wakes any blocked dequeuers.
func (q *Queue) runDelayedDaemon() {
	const pollInterval = 10 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.closeCh:
			return
		case <-ticker.C:
			q.mu.Lock()
			now := time.Now()
			for q.delayed.Len() > 0 && !q.delayed.items[0].eta.After(now) {
				item := heap.Pop(q.delayed).(*queueItem)
				q.pushReady(item.task.Config().QueueName, item)
			}
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}

// Cancel marks a queued task cancelled if it is still found in a ready or
// delayed heap. Tasks already dispatched to a worker are not forcibly
// stopped by the queue — see spec.md §4.5 for cooperative cancellation.
func (q *Queue) Cancel(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelMatching(func(t *Task) bool { return t.ID() == taskID })
}

// CancelByTag marks all queued tasks carrying tag as cancelled.
func (q *Queue) CancelByTag(tag string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	q.cancelMatchingAll(func(t *Task) bool {
		if t.HasTag(tag) {
			count++
			return true
		}
		return false
	})
	return count
}

func (q *Queue) cancelMatching(pred func(*Task) bool) bool {
	found := false
	q.cancelMatchingAll(func(t *Task) bool {
		if pred(t) {
			found = true
			return true
		}
		return false
	})
	return found
}

func (q *Queue) cancelMatchingAll(pred func(*Task) bool) {
	for _, ph := range q.queues {
		for _, it := range ph.items {
			if pred(it.task) {
				it.task.MarkCancelled()
			}
		}
	}
	for _, it := range q.delayed.items {
		if pred(it.task) {
			it.task.MarkCancelled()
		}
	}
}

// QueueSize returns the number of ready (not delayed) items in the named
// queue.
func (q *Queue) QueueSize(name string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	ph, ok := q.queues[name]
	if !ok {
		return 0
	}
	return ph.Len()
}

// PendingTasks returns the tasks currently sitting in the named queue's
// ready heap, in no particular order (the heap array is not sorted, only
// heap-ordered). Used by Monitor.ListPendingTasks for spec.md §4.10's
// list_pending_tasks(queue) operation.
func (q *Queue) PendingTasks(name string) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	ph, ok := q.queues[name]
	if !ok {
		return nil
	}
	tasks := make([]*Task, len(ph.items))
	for i, it := range ph.items {
		tasks[i] = it.task
	}
	return tasks
}

// DelayedSize returns the number of tasks currently held back by a future
// ETA, across all queues.
func (q *Queue) DelayedSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.delayed.Len()
}

// Shutdown stops the delayed-release daemon and wakes all blocked
// dequeuers, which then observe closed and return (nil, nil).
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.closeCh)

	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}
