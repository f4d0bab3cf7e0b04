package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRegistry_RegisterLookupUnregister(t *testing.T) {
	r := NewHandlerRegistry()
	_, ok := r.Lookup("echo")
	assert.False(t, ok)

	fn := HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		return NewPayload(), nil
	})
	r.RegisterFunc("echo", fn)

	h, ok := r.Lookup("echo")
	require.True(t, ok)
	result, err := h.Handle(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, result)

	r.Unregister("echo")
	_, ok = r.Lookup("echo")
	assert.False(t, ok)
}

func TestHandlerRegistry_RegisterReplacesExisting(t *testing.T) {
	r := NewHandlerRegistry()
	first := HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		return nil, nil
	})
	second := HandlerFunc(func(ctx context.Context, task *Task, tc *TaskContext) (*Payload, error) {
		out := NewPayload()
		out.Set("v", "second")
		return out, nil
	})
	r.RegisterFunc("job", first)
	r.RegisterFunc("job", second)

	h, ok := r.Lookup("job")
	require.True(t, ok)
	result, _ := h.Handle(context.Background(), nil, nil)
	v, _ := result.Get("v")
	assert.Equal(t, "second", v)
}

func TestHandlerRegistry_Names(t *testing.T) {
	r := NewHandlerRegistry()
	r.RegisterFunc("a", HandlerFunc(func(context.Context, *Task, *TaskContext) (*Payload, error) { return nil, nil }))
	r.RegisterFunc("b", HandlerFunc(func(context.Context, *Task, *TaskContext) (*Payload, error) { return nil, nil }))
	assert.ElementsMatch(t, []string{"a", "b"}, r.Names())
}
