package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, backend ResultBackend, spawner Spawner) (*TaskContext, *Task) {
	t.Helper()
	task, err := NewTask("job", nil, DefaultConfig())
	require.NoError(t, err)
	return NewTaskContext(task, backend, spawner, nil, 1, nil), task
}

func TestTaskContext_AttemptAndElapsed(t *testing.T) {
	tc, _ := newTestContext(t, nil, nil)
	assert.Equal(t, 1, tc.Attempt())
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, tc.Elapsed(), time.Duration(0))
}

func TestTaskContext_UpdateProgressClampsAndStoresOnBackend(t *testing.T) {
	backend := NewMemoryBackend()
	tc, task := newTestContext(t, backend, nil)

	tc.UpdateProgress(1.5, "almost")
	p, msg := task.Progress()
	assert.Equal(t, 1.0, p)
	assert.Equal(t, "almost", msg)

	stored, storedMsg, err := backend.GetProgress(context.Background(), task.ID())
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored)
	assert.Equal(t, "almost", storedMsg)
}

func TestTaskContext_CheckpointRoundTrip(t *testing.T) {
	tc, task := newTestContext(t, nil, nil)
	assert.False(t, tc.HasCheckpoint())

	payload := NewPayload()
	payload.Set("offset", 7)
	tc.SaveCheckpoint(payload)

	assert.True(t, tc.HasCheckpoint())
	got, ok := tc.LoadCheckpoint()
	require.True(t, ok)
	n, _ := GetTyped[int](got, "offset")
	assert.Equal(t, 7, n)

	taskCheckpoint, ok := task.Checkpoint()
	require.True(t, ok)
	n, _ = GetTyped[int](taskCheckpoint, "offset")
	assert.Equal(t, 7, n)
}

func TestTaskContext_SpawnSubtaskRecordsOnParentAndRejectsWithoutSpawner(t *testing.T) {
	tc, task := newTestContext(t, nil, nil)
	child, err := NewTask("child", nil, DefaultConfig())
	require.NoError(t, err)

	_, err = tc.SpawnSubtask(child)
	assert.Equal(t, KindNotSupported, KindOf(err))

	spawner := SpawnerFunc(func(task *Task) (string, error) { return task.ID(), nil })
	tc2 := NewTaskContext(task, nil, spawner, nil, 1, nil)
	id, err := tc2.SpawnSubtask(child)
	require.NoError(t, err)
	assert.Equal(t, child.ID(), id)
	assert.Equal(t, []string{child.ID()}, task.Subtasks())
}

func TestTaskContext_IsCancelledReflectsLocalAndTaskLevelRequests(t *testing.T) {
	tc, task := newTestContext(t, nil, nil)
	assert.False(t, tc.IsCancelled())

	tc.RequestCancel()
	assert.True(t, tc.IsCancelled())

	tc3, task3 := newTestContext(t, nil, nil)
	task3.RequestCancel()
	assert.True(t, tc3.IsCancelled())
	_ = task
}

func TestTaskContext_LogHelpersAppendHistory(t *testing.T) {
	tc, _ := newTestContext(t, nil, nil)
	tc.LogInfo("starting")
	tc.LogWarning("slow response")
	tc.LogError("giving up")

	history := tc.History()
	require.Len(t, history, 3)
	assert.Equal(t, string(LevelInfo), history[0].Level)
	assert.Equal(t, "starting", history[0].Message)
	assert.Equal(t, string(LevelWarn), history[1].Level)
	assert.Equal(t, string(LevelError), history[2].Level)
}
