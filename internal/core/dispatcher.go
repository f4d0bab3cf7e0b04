package core

import (
	"context"
	"strconv"
)

func workerID(i int) string { return "worker-" + strconv.Itoa(i) }

// runDispatchLoop is one worker's loop (spec.md §4.6): pull a task from one
// of the pool's assigned queues honoring priority, execute it, repeat until
// the pool is stopped. rotation rotates the starting queue index each
// iteration so equal-top-priority queues get round-robin fairness across
// iterations, matching Queue.DequeueAny's documented contract.
func (p *Pool) runDispatchLoop(ctx context.Context, id string, hb *heartbeat, workerIndex int) {
	defer p.wg.Done()
	defer p.events.NotifyWorkerOffline(id)

	rotation := workerIndex
	for {
		select {
		case <-p.lifecycle.Done():
			return
		default:
		}

		task, _, err := p.queue.DequeueAny(ctx, p.cfg.QueueNames, rotation, p.cfg.DequeueTimeout)
		rotation++
		hb.beat(0)
		if err != nil || task == nil {
			continue
		}

		select {
		case <-p.lifecycle.Done():
			// Pool is shutting down: record this dequeued task as
			// failed(shutdown) rather than silently dropping it, so its
			// AsyncResult observer isn't left hanging forever.
			p.abandon(task, ErrShuttingDown)
			return
		default:
		}

		hb.beat(1)
		p.executeAttempt(ctx, id, task)
		hb.beat(-1)
		hb.jobDone()
	}
}

// abandon records a task as failed with the given cause without running
// its handler — used when the pool is stopped with a task already in hand.
func (p *Pool) abandon(task *Task, cause error) {
	task.MarkRunning()
	task.MarkFailed(cause.Error(), "")
	p.storeTerminal(task)
	p.events.NotifyTaskFailed(task, cause)
}
