package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTask(t *testing.T, name string, cfg Config) *Task {
	t.Helper()
	task, err := NewTask(name, nil, cfg)
	require.NoError(t, err)
	return task
}

func TestQueue_EnqueueDequeueFIFO(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	cfg := DefaultConfig()
	a := mustTask(t, "a", cfg)
	b := mustTask(t, "b", cfg)
	_, err := q.Enqueue(a)
	require.NoError(t, err)
	_, err = q.Enqueue(b)
	require.NoError(t, err)

	got, err := q.Dequeue(context.Background(), "default", time.Second)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), got.ID())

	got, err = q.Dequeue(context.Background(), "default", time.Second)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), got.ID())
}

func TestQueue_HigherPriorityDequeuesFirst(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	low := DefaultConfig()
	low.Priority = PriorityLow
	high := DefaultConfig()
	high.Priority = PriorityCritical

	lowTask := mustTask(t, "low", low)
	highTask := mustTask(t, "high", high)
	_, err := q.Enqueue(lowTask)
	require.NoError(t, err)
	_, err = q.Enqueue(highTask)
	require.NoError(t, err)

	got, err := q.Dequeue(context.Background(), "default", time.Second)
	require.NoError(t, err)
	assert.Equal(t, highTask.ID(), got.ID())
}

func TestQueue_DequeueTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	got, err := q.Dequeue(context.Background(), "default", 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_CapacityRejectsBeyondLimit(t *testing.T) {
	q := NewQueue(1)
	defer q.Shutdown()

	_, err := q.Enqueue(mustTask(t, "a", DefaultConfig()))
	require.NoError(t, err)
	_, err = q.Enqueue(mustTask(t, "b", DefaultConfig()))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueue_DelayedTaskReleasedAfterETA(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	cfg := DefaultConfig()
	eta := time.Now().Add(30 * time.Millisecond)
	cfg.ETA = &eta
	task := mustTask(t, "delayed", cfg)
	_, err := q.Enqueue(task)
	require.NoError(t, err)

	assert.Equal(t, 1, q.DelayedSize())

	got, err := q.Dequeue(context.Background(), "default", 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID(), got.ID())
}

func TestQueue_CancelMarksQueuedTaskCancelled(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	task := mustTask(t, "a", DefaultConfig())
	_, err := q.Enqueue(task)
	require.NoError(t, err)

	assert.True(t, q.Cancel(task.ID()))
	assert.Equal(t, StateCancelled, task.State())
}

func TestQueue_CancelByTag(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	cfg := DefaultConfig()
	cfg.Tags = []string{"batch-1"}
	a := mustTask(t, "a", cfg)
	b := mustTask(t, "b", cfg)
	other := mustTask(t, "c", DefaultConfig())
	for _, task := range []*Task{a, b, other} {
		_, err := q.Enqueue(task)
		require.NoError(t, err)
	}

	n := q.CancelByTag("batch-1")
	assert.Equal(t, 2, n)
	assert.Equal(t, StateCancelled, a.State())
	assert.Equal(t, StateCancelled, b.State())
	assert.Equal(t, StateQueued, other.State())
}

func TestQueue_DequeueAnyRotatesStartIndex(t *testing.T) {
	q := NewQueue(0)
	defer q.Shutdown()

	cfgA := DefaultConfig()
	cfgA.QueueName = "a"
	cfgB := DefaultConfig()
	cfgB.QueueName = "b"
	_, err := q.Enqueue(mustTask(t, "x", cfgA))
	require.NoError(t, err)
	_, err = q.Enqueue(mustTask(t, "y", cfgB))
	require.NoError(t, err)

	task, name, err := q.DequeueAny(context.Background(), []string{"a", "b"}, 1, time.Second)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Contains(t, []string{"a", "b"}, name)
	assert.Equal(t, "b", name)
}

func TestQueue_ShutdownUnblocksDequeue(t *testing.T) {
	q := NewQueue(0)
	done := make(chan struct{})
	go func() {
		_, _ = q.Dequeue(context.Background(), "default", time.Minute)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	q.Shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock after shutdown")
	}
}
