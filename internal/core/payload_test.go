package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayload_SetGetHasRemove(t *testing.T) {
	p := NewPayload()
	assert.False(t, p.Has("a"))

	p.Set("a", 1)
	assert.True(t, p.Has("a"))
	v, ok := p.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	p.Remove("a")
	assert.False(t, p.Has("a"))
}

func TestPayload_GetTyped(t *testing.T) {
	p := NewPayload()
	p.Set("count", 42)

	n, ok := GetTyped[int](p, "count")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = GetTyped[string](p, "count")
	assert.False(t, ok)

	_, ok = GetTyped[int](p, "missing")
	assert.False(t, ok)
}

func TestPayload_CloneIsIndependent(t *testing.T) {
	p := NewPayload()
	p.Set("a", 1)
	clone := p.Clone()
	clone.Set("a", 2)
	clone.Set("b", 3)

	v, _ := p.Get("a")
	assert.Equal(t, 1, v)
	assert.False(t, p.Has("b"))
}

func TestPayloadFrom(t *testing.T) {
	p := PayloadFrom(map[string]any{"a": 1, "b": "two"})
	assert.Equal(t, 2, p.Size())
	a, _ := p.Get("a")
	assert.Equal(t, 1, a)
}

func TestPayload_Keys(t *testing.T) {
	p := NewPayload()
	p.Set("a", 1)
	p.Set("b", 2)
	assert.ElementsMatch(t, []string{"a", "b"}, p.Keys())
}
