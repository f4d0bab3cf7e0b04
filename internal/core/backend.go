package core

import (
	"context"
	"sync"
	"time"
)

// ResultBackend is the abstract store from spec.md §4.4: state, result,
// error, and progress for every task, plus a blocking wait for a terminal
// state. Any conforming backend — the default in-memory one, or an
// optional remote one such as backend/redisbackend or
// backend/postgresbackend — must implement every operation with the
// guarantees documented on each method below.
type ResultBackend interface {
	StoreState(ctx context.Context, taskID string, state State) error
	StoreResult(ctx context.Context, taskID string, result *Payload) error
	StoreError(ctx context.Context, taskID string, msg, traceback string) error
	StoreProgress(ctx context.Context, taskID string, progress float64, msg string) error

	GetState(ctx context.Context, taskID string) (State, error)
	GetResult(ctx context.Context, taskID string) (*Payload, error)
	GetError(ctx context.Context, taskID string) (msg, traceback string, err error)
	GetProgress(ctx context.Context, taskID string) (progress float64, msg string, err error)

	// WaitForResult blocks until taskID reaches a terminal state, ctx is
	// done, or timeout elapses, returning ErrTimeout when timeout elapses.
	// The error for a done ctx depends on the backend: MemoryBackend
	// returns ErrCancelled, redisbackend and postgresbackend return
	// ErrShuttingDown. Closing a MemoryBackend does not wake waiters.
	WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (State, *Payload, error)

	// CleanupExpired removes entries whose terminal time is older than
	// maxAge.
	CleanupExpired(ctx context.Context, maxAge time.Duration) error
}

type backendEntry struct {
	state        State
	result       *Payload
	errorMessage string
	errorTrace   string
	progress     float64
	progressMsg  string
	terminalAt   time.Time

	doneCh chan struct{} // closed exactly once, when state becomes terminal
}

// MemoryBackend is the default in-memory ResultBackend required by
// spec.md §4.4. It is safe for concurrent use.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*backendEntry
	closed  bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*backendEntry)}
}

func (b *MemoryBackend) entry(taskID string) *backendEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[taskID]
	if !ok {
		e = &backendEntry{doneCh: make(chan struct{})}
		b.entries[taskID] = e
	}
	return e
}

// StoreState writes the task's state. Writes are monotonic from a single
// writer's perspective; illegal transitions are accepted (the worker pool
// is the sole enforcer of the state machine) but callers SHOULD log them.
func (b *MemoryBackend) StoreState(_ context.Context, taskID string, state State) error {
	e := b.entry(taskID)
	b.mu.Lock()
	defer b.mu.Unlock()
	wasTerminal := e.state.Terminal()
	e.state = state
	if state.Terminal() && !wasTerminal {
		e.terminalAt = time.Now()
		close(e.doneCh)
	}
	return nil
}

// StoreResult records the task's result. Intended to be called exactly
// once per task; later calls overwrite.
func (b *MemoryBackend) StoreResult(_ context.Context, taskID string, result *Payload) error {
	e := b.entry(taskID)
	b.mu.Lock()
	defer b.mu.Unlock()
	e.result = result
	return nil
}

// StoreError records the task's failure message/traceback, independent of
// StoreResult; the two SHOULD NOT coexist.
func (b *MemoryBackend) StoreError(_ context.Context, taskID string, msg, traceback string) error {
	e := b.entry(taskID)
	b.mu.Lock()
	defer b.mu.Unlock()
	e.errorMessage = msg
	e.errorTrace = traceback
	return nil
}

// StoreProgress clamps progress into [0,1] and records it, last-writer-wins.
func (b *MemoryBackend) StoreProgress(_ context.Context, taskID string, progress float64, msg string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	e := b.entry(taskID)
	b.mu.Lock()
	defer b.mu.Unlock()
	e.progress = progress
	e.progressMsg = msg
	return nil
}

// GetState returns the stored state, or ErrNotFound.
func (b *MemoryBackend) GetState(_ context.Context, taskID string) (State, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[taskID]
	if !ok {
		return "", ErrNotFound
	}
	return e.state, nil
}

// GetResult returns the stored result, or ErrNotFound.
func (b *MemoryBackend) GetResult(_ context.Context, taskID string) (*Payload, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.result, nil
}

// GetError returns the stored error, or ErrNotFound.
func (b *MemoryBackend) GetError(_ context.Context, taskID string) (string, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[taskID]
	if !ok {
		return "", "", ErrNotFound
	}
	return e.errorMessage, e.errorTrace, nil
}

// GetProgress returns the stored progress, or ErrNotFound.
func (b *MemoryBackend) GetProgress(_ context.Context, taskID string) (float64, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[taskID]
	if !ok {
		return 0, "", ErrNotFound
	}
	return e.progress, e.progressMsg, nil
}

// WaitForResult blocks until taskID reaches a terminal state, ctx is
// cancelled, or timeout elapses.
func (b *MemoryBackend) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (State, *Payload, error) {
	e := b.entry(taskID)

	b.mu.RLock()
	if e.state.Terminal() {
		state, result := e.state, e.result
		b.mu.RUnlock()
		return state, result, nil
	}
	done := e.doneCh
	b.mu.RUnlock()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		b.mu.RLock()
		defer b.mu.RUnlock()
		return e.state, e.result, nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return "", nil, ErrCancelled
		}
		return "", nil, ErrTimeout
	}
}

// CleanupExpired removes entries whose terminal time predates maxAge.
func (b *MemoryBackend) CleanupExpired(_ context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.entries {
		if e.state.Terminal() && e.terminalAt.Before(cutoff) {
			delete(b.entries, id)
		}
	}
	return nil
}

// Close marks the backend closed; further WaitForResult calls are still
// served from already-stored state but no new blocking is guaranteed
// beyond ctx/timeout semantics.
func (b *MemoryBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
