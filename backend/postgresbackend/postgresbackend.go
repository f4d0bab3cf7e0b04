// Package postgresbackend implements core.ResultBackend over PostgreSQL
// via github.com/jackc/pgx/v5/pgxpool, following the parameterized-query
// and pool-holding shape of
// TheEntropyCollective-noisefs/pkg/compliance/storage/postgres.
package postgresbackend

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskflow-go/taskflow/internal/core"
)

// schema is the table this backend reads and writes. Backend runs this
// DDL only when EnsureSchema is called; otherwise the table (or an
// equivalent migration) must already exist in the database.
const schema = `
CREATE TABLE IF NOT EXISTS taskflow_results (
	task_id         TEXT PRIMARY KEY,
	state           TEXT NOT NULL,
	result          JSONB,
	error_message   TEXT,
	error_trace     TEXT,
	progress        DOUBLE PRECISION NOT NULL DEFAULT 0,
	progress_msg    TEXT,
	completed_at    TIMESTAMPTZ,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Backend is a core.ResultBackend backed by a *pgxpool.Pool.
type Backend struct {
	pool *pgxpool.Pool
}

// New constructs a Backend over an already-connected pool.
func New(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

// EnsureSchema creates the backing table if it does not already exist.
// Callers typically run this once at startup.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, schema)
	return err
}

// StoreState implements core.ResultBackend.
func (b *Backend) StoreState(ctx context.Context, taskID string, state core.State) error {
	var completedAt *time.Time
	if state.Terminal() {
		now := time.Now()
		completedAt = &now
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO taskflow_results (task_id, state, completed_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (task_id) DO UPDATE
		SET state = EXCLUDED.state, completed_at = COALESCE(EXCLUDED.completed_at, taskflow_results.completed_at), updated_at = now()
	`, taskID, string(state), completedAt)
	return err
}

// StoreResult implements core.ResultBackend, flattening the Payload into
// a JSON document via its exported Keys()/Get accessors — the core
// never serializes a Payload itself; that conversion lives entirely in
// this transport-facing package (spec.md §4.1, §6.6).
func (b *Backend) StoreResult(ctx context.Context, taskID string, result *core.Payload) error {
	data, err := json.Marshal(payloadToMap(result))
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
		INSERT INTO taskflow_results (task_id, state, result, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (task_id) DO UPDATE
		SET result = EXCLUDED.result, updated_at = now()
	`, taskID, string(core.StateSucceeded), data)
	return err
}

// StoreError implements core.ResultBackend.
func (b *Backend) StoreError(ctx context.Context, taskID string, msg, traceback string) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO taskflow_results (task_id, state, error_message, error_trace, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (task_id) DO UPDATE
		SET error_message = EXCLUDED.error_message, error_trace = EXCLUDED.error_trace, updated_at = now()
	`, taskID, string(core.StateFailed), msg, traceback)
	return err
}

// StoreProgress implements core.ResultBackend; p is clamped into [0,1].
func (b *Backend) StoreProgress(ctx context.Context, taskID string, p float64, msg string) error {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO taskflow_results (task_id, state, progress, progress_msg, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (task_id) DO UPDATE
		SET progress = EXCLUDED.progress, progress_msg = EXCLUDED.progress_msg, updated_at = now()
	`, taskID, string(core.StatePending), p, msg)
	return err
}

// GetState implements core.ResultBackend.
func (b *Backend) GetState(ctx context.Context, taskID string) (core.State, error) {
	var state string
	err := b.pool.QueryRow(ctx, `SELECT state FROM taskflow_results WHERE task_id = $1`, taskID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return core.State(state), nil
}

// GetResult implements core.ResultBackend.
func (b *Backend) GetResult(ctx context.Context, taskID string) (*core.Payload, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT result FROM taskflow_results WHERE task_id = $1`, taskID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	values := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, err
		}
	}
	return core.PayloadFrom(values), nil
}

// GetError implements core.ResultBackend.
func (b *Backend) GetError(ctx context.Context, taskID string) (msg, traceback string, err error) {
	var m, tb *string
	err = b.pool.QueryRow(ctx, `SELECT error_message, error_trace FROM taskflow_results WHERE task_id = $1`, taskID).Scan(&m, &tb)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", core.ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	if m != nil {
		msg = *m
	}
	if tb != nil {
		traceback = *tb
	}
	return msg, traceback, nil
}

// GetProgress implements core.ResultBackend.
func (b *Backend) GetProgress(ctx context.Context, taskID string) (progress float64, msg string, err error) {
	var pm *string
	err = b.pool.QueryRow(ctx, `SELECT progress, progress_msg FROM taskflow_results WHERE task_id = $1`, taskID).Scan(&progress, &pm)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", core.ErrNotFound
	}
	if err != nil {
		return 0, "", err
	}
	if pm != nil {
		msg = *pm
	}
	return progress, msg, nil
}

// WaitForResult implements core.ResultBackend by polling GetState, the
// same bounded-backoff shape core.AsyncResult.Wait uses, since LISTEN/
// NOTIFY would require holding a dedicated connection outside the pool
// for the lifetime of every wait.
func (b *Backend) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (core.State, *core.Payload, error) {
	const pollInterval = 100 * time.Millisecond
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		state, err := b.GetState(ctx, taskID)
		if err == nil && state.Terminal() {
			if state == core.StateSucceeded {
				result, _ := b.GetResult(ctx, taskID)
				return state, result, nil
			}
			return state, nil, nil
		}
		select {
		case <-ctx.Done():
			return "", nil, core.ErrShuttingDown
		case <-ticker.C:
			if time.Now().After(deadline) {
				return "", nil, core.ErrTimeout
			}
		}
	}
}

// CleanupExpired implements core.ResultBackend: deletes terminal rows
// older than maxAge.
func (b *Backend) CleanupExpired(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)
	_, err := b.pool.Exec(ctx, `
		DELETE FROM taskflow_results
		WHERE completed_at IS NOT NULL AND completed_at < $1
	`, cutoff)
	return err
}

func payloadToMap(p *core.Payload) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, p.Size())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		out[k] = v
	}
	return out
}
