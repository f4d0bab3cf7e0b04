package core

import "fmt"

// Chord composes a fan-out/fan-in workflow, spec.md §4.7: every task in
// parallels is submitted concurrently; once all succeed, their results are
// assembled — in parallels' input order, even though children complete out
// of order, the way ygrebnov-workers/reorderer.go buffers out-of-order
// completions back into order — into callback's payload, and callback is
// submitted. The workflow's terminal state mirrors callback's. On the
// first child failure the workflow fails and callback is never submitted.
// An empty parallels list runs callback alone, and its result is the
// chord's result (spec.md §8 boundary behavior).
func (c *Client) Chord(parallels []*Task, callback *Task) (*AsyncResult, error) {
	workflowID := newWorkflowID()
	ctx := noCancelCtx()
	if err := c.backend.StoreState(ctx, workflowID, StatePending); err != nil {
		return nil, err
	}
	for _, t := range parallels {
		t.SetParent(workflowID)
	}
	callback.SetParent(workflowID)

	run := func() {
		if err := c.backend.StoreState(ctx, workflowID, StateRunning); err != nil {
			return
		}
		n := len(parallels)
		if n == 0 {
			c.runChordCallback(workflowID, callback, NewPayload())
			return
		}

		ids := make([]string, n)
		for i, t := range parallels {
			if _, err := c.Submit(t); err != nil {
				c.failWorkflow(workflowID, err)
				return
			}
			ids[i] = t.ID()
		}

		type completion struct {
			idx    int
			state  State
			result *Payload
			msg    string
		}
		doneCh := make(chan completion, n)
		for i, id := range ids {
			i, id := i, id
			go func() {
				state, result, msg := c.awaitTerminal(id)
				doneCh <- completion{idx: i, state: state, result: result, msg: msg}
			}()
		}

		results := make([]*Payload, n)
		var failMsg string
		failed := false
		for k := 0; k < n; k++ {
			d := <-doneCh
			if d.state != StateSucceeded {
				failed = true
				if failMsg == "" {
					failMsg = d.msg
				}
				continue
			}
			results[d.idx] = d.result
			_ = c.backend.StoreProgress(ctx, workflowID, float64(k+1)/float64(n), "")
		}
		if failed {
			c.failWorkflow(workflowID, errString(failMsg))
			return
		}

		payload := NewPayload()
		for i, r := range results {
			payload.Set(fmt.Sprintf("result_%d", i), r)
		}
		c.runChordCallback(workflowID, callback, payload)
	}
	c.runOrchestrator(run)

	return c.Result(workflowID), nil
}

// runChordCallback submits callback with payload and mirrors its terminal
// state/result/error onto the workflow id.
func (c *Client) runChordCallback(workflowID string, callback *Task, payload *Payload) {
	callback.SetPayload(payload)
	if _, err := c.Submit(callback); err != nil {
		c.failWorkflow(workflowID, err)
		return
	}
	state, result, msg := c.awaitTerminal(callback.ID())
	ctx := noCancelCtx()
	if state == StateSucceeded {
		_ = c.backend.StoreResult(ctx, workflowID, result)
		_ = c.backend.StoreState(ctx, workflowID, StateSucceeded)
		return
	}
	_ = c.backend.StoreError(ctx, workflowID, msg, "")
	_ = c.backend.StoreState(ctx, workflowID, StateFailed)
}
