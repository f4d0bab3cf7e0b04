package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg PoolConfig, registry *HandlerRegistry) (*Pool, *Queue, *MemoryBackend) {
	t.Helper()
	queue := NewQueue(0)
	backend := NewMemoryBackend()
	pool := NewPool(cfg, queue, backend, registry)
	t.Cleanup(func() {
		pool.Stop()
		queue.Shutdown()
	})
	return pool, queue, backend
}

func TestPool_EchoHandlerSucceeds(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.RegisterFunc("echo", HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		out := NewPayload()
		msg, _ := task.Payload().Get("message")
		out.Set("message", msg)
		return out, nil
	}))

	cfg := DefaultPoolConfig()
	cfg.Concurrency = 1
	pool, queue, backend := newTestPool(t, cfg, registry)
	pool.Start(context.Background())

	payload := NewPayload()
	payload.Set("message", "hi")
	task, err := NewTask("echo", payload, DefaultConfig())
	require.NoError(t, err)
	_, err = queue.Enqueue(task)
	require.NoError(t, err)

	state, result, err := backend.WaitForResult(context.Background(), task.ID(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, state)
	msg, _ := result.Get("message")
	assert.Equal(t, "hi", msg)
}

func TestPool_RetriesWithBackoffThenSucceeds(t *testing.T) {
	var attempts int64
	registry := NewHandlerRegistry()
	registry.RegisterFunc("flaky", HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		if atomic.AddInt64(&attempts, 1) < 3 {
			return nil, NewError(KindInternal, assertError{"transient"})
		}
		return NewPayload(), nil
	}))

	cfg := DefaultPoolConfig()
	cfg.Concurrency = 1
	pool, queue, backend := newTestPool(t, cfg, registry)
	pool.Start(context.Background())

	taskCfg := DefaultConfig()
	taskCfg.MaxRetries = 5
	taskCfg.RetryDelay = 5 * time.Millisecond
	task, err := NewTask("flaky", nil, taskCfg)
	require.NoError(t, err)
	_, err = queue.Enqueue(task)
	require.NoError(t, err)

	state, _, err := backend.WaitForResult(context.Background(), task.ID(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, state)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
}

func TestPool_ExhaustedRetriesFailsTerminal(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.RegisterFunc("alwaysFails", HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		return nil, NewError(KindInternal, assertError{"boom"})
	}))

	cfg := DefaultPoolConfig()
	cfg.Concurrency = 1
	pool, queue, backend := newTestPool(t, cfg, registry)
	pool.Start(context.Background())

	taskCfg := DefaultConfig()
	taskCfg.MaxRetries = 2
	taskCfg.RetryDelay = 5 * time.Millisecond
	task, err := NewTask("alwaysFails", nil, taskCfg)
	require.NoError(t, err)
	_, err = queue.Enqueue(task)
	require.NoError(t, err)

	state, _, err := backend.WaitForResult(context.Background(), task.ID(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)
}

func TestPool_CooperativeCancellationOnTimeout(t *testing.T) {
	registry := NewHandlerRegistry()
	registry.RegisterFunc("slow", HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	cfg := DefaultPoolConfig()
	cfg.Concurrency = 1
	cfg.CancelGrace = 20 * time.Millisecond
	pool, queue, backend := newTestPool(t, cfg, registry)
	pool.Start(context.Background())

	taskCfg := DefaultConfig()
	taskCfg.Timeout = 20 * time.Millisecond
	task, err := NewTask("slow", nil, taskCfg)
	require.NoError(t, err)
	_, err = queue.Enqueue(task)
	require.NoError(t, err)

	state, _, err := backend.WaitForResult(context.Background(), task.ID(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)
}

func TestPool_HandlerNotFoundFailsWithoutRetry(t *testing.T) {
	registry := NewHandlerRegistry()
	cfg := DefaultPoolConfig()
	cfg.Concurrency = 1
	pool, queue, backend := newTestPool(t, cfg, registry)
	pool.Start(context.Background())

	taskCfg := DefaultConfig()
	taskCfg.MaxRetries = 5
	task, err := NewTask("unregistered", nil, taskCfg)
	require.NoError(t, err)
	_, err = queue.Enqueue(task)
	require.NoError(t, err)

	state, _, err := backend.WaitForResult(context.Background(), task.ID(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)
}

// assertError is a minimal error value used to avoid importing "errors"
// solely for a one-off handler failure in these tests.
type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
