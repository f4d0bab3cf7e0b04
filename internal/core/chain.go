package core

import (
	"fmt"
	"time"
)

// Chain composes tasks into a sequential pipe, spec.md §4.7: a virtual
// workflow task id is created, tasks[0] is submitted, and a background
// orchestrator awaits each child's result, feeds it into the next child's
// payload, and finally stores the last child's result under the workflow
// id. If any child fails, the workflow fails and remaining children are
// never submitted. Progress is reported k/n after each child.
func (c *Client) Chain(tasks []*Task) (*AsyncResult, error) {
	if len(tasks) == 0 {
		return nil, ErrInvalidTask
	}

	workflowID := newWorkflowID()
	ctx := noCancelCtx()
	if err := c.backend.StoreState(ctx, workflowID, StatePending); err != nil {
		return nil, err
	}
	for _, t := range tasks {
		t.SetParent(workflowID)
	}

	run := func() {
		if err := c.backend.StoreState(ctx, workflowID, StateRunning); err != nil {
			return
		}
		n := len(tasks)
		var last *Payload
		for i, t := range tasks {
			if i > 0 {
				t.SetPayload(last)
			}
			if _, err := c.Submit(t); err != nil {
				c.failWorkflow(workflowID, err)
				return
			}
			state, result, msg := c.awaitTerminal(t.ID())
			if state != StateSucceeded {
				c.failWorkflow(workflowID, errString(msg))
				return
			}
			last = result
			_ = c.backend.StoreProgress(ctx, workflowID, float64(i+1)/float64(n), fmt.Sprintf("%d/%d", i+1, n))
		}
		_ = c.backend.StoreResult(ctx, workflowID, last)
		_ = c.backend.StoreState(ctx, workflowID, StateSucceeded)
	}
	c.runOrchestrator(run)

	return c.Result(workflowID), nil
}

// runOrchestrator submits fn to the client's Executor, falling back to a
// plain goroutine that nothing tracks if no Executor accepts it (e.g.
// shutting down) —
// spec.md §9: "represent as jobs submitted to an executor... never detach
// without tracking."
func (c *Client) runOrchestrator(fn func()) {
	if c.executor != nil {
		if err := c.executor.Execute(fn); err == nil {
			return
		}
	}
	go fn()
}

// awaitTerminal blocks (polling at pollCadence) until taskID reaches a
// terminal state, then returns it along with the result or error message.
func (c *Client) awaitTerminal(taskID string) (State, *Payload, string) {
	ar := c.Result(taskID)
	for !ar.IsReady() {
		time.Sleep(pollCadence)
	}
	state := ar.State()
	if state == StateSucceeded {
		result, _ := c.backend.GetResult(noCancelCtx(), taskID)
		return state, result, ""
	}
	msg, _, _ := c.backend.GetError(noCancelCtx(), taskID)
	return state, nil, msg
}

// failWorkflow records a virtual workflow task id as failed.
func (c *Client) failWorkflow(workflowID string, err error) {
	ctx := noCancelCtx()
	_ = c.backend.StoreError(ctx, workflowID, err.Error(), "")
	_ = c.backend.StoreState(ctx, workflowID, StateFailed)
}
