package router

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-go/taskflow/internal/core"
)

func TestRouter_SubscribeValidation(t *testing.T) {
	r := NewRouter()

	_, err := r.Subscribe("a.b", nil, nil, 0)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))

	_, err = r.Subscribe("a.b", func(Message) error { return nil }, nil, -1)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))

	_, err = r.Subscribe("a.b", func(Message) error { return nil }, nil, 11)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))

	_, err = r.Subscribe("", func(Message) error { return nil }, nil, 0)
	assert.Equal(t, core.KindInvalidArgument, core.KindOf(err))
}

func TestRouter_SubscribeIDsNeverReused(t *testing.T) {
	r := NewRouter()
	cb := func(Message) error { return nil }

	id1, err := r.Subscribe("a.b", cb, nil, 0)
	require.NoError(t, err)
	id2, err := r.Subscribe("a.b", cb, nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	require.NoError(t, r.Unsubscribe(id1))
	id3, err := r.Subscribe("a.b", cb, nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	assert.NotEqual(t, id2, id3)
}

func TestRouter_UnsubscribeIdempotent(t *testing.T) {
	r := NewRouter()
	id, err := r.Subscribe("a.b", func(Message) error { return nil }, nil, 0)
	require.NoError(t, err)

	require.NoError(t, r.Unsubscribe(id))
	err = r.Unsubscribe(id)
	assert.ErrorIs(t, err, core.ErrSubscriptionGone)
}

func TestRouter_RouteNoSubscribers(t *testing.T) {
	r := NewRouter()
	err := r.Route(Message{Topic: "a.b"})
	assert.ErrorIs(t, err, core.ErrNoSubscribers)
}

func TestRouter_RouteFilterExcludes(t *testing.T) {
	r := NewRouter()
	fired := false
	_, err := r.Subscribe("a.*", func(Message) error { fired = true; return nil }, func(Message) bool { return false }, 0)
	require.NoError(t, err)

	err = r.Route(Message{Topic: "a.b"})
	assert.ErrorIs(t, err, core.ErrNoSubscribers)
	assert.False(t, fired)
}

func TestRouter_RouteDispatchesInPriorityOrder(t *testing.T) {
	r := NewRouter()
	var mu sync.Mutex
	var order []int

	record := func(n int) Callback {
		return func(Message) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}

	_, err := r.Subscribe("a.b", record(1), nil, 1)
	require.NoError(t, err)
	_, err = r.Subscribe("a.b", record(10), nil, 10)
	require.NoError(t, err)
	_, err = r.Subscribe("a.b", record(5), nil, 5)
	require.NoError(t, err)

	require.NoError(t, r.Route(Message{Topic: "a.b"}))
	assert.Equal(t, []int{10, 5, 1}, order)
}

func TestRouter_RouteAllFailed(t *testing.T) {
	r := NewRouter()
	boom := errors.New("boom")
	_, err := r.Subscribe("a.b", func(Message) error { return boom }, nil, 0)
	require.NoError(t, err)
	_, err = r.Subscribe("a.b", func(Message) error { return boom }, nil, 0)
	require.NoError(t, err)

	err = r.Route(Message{Topic: "a.b"})
	require.Error(t, err)
	assert.Equal(t, core.KindHandlerError, core.KindOf(err))
}

func TestRouter_RouteOkIfAnySucceeds(t *testing.T) {
	r := NewRouter()
	_, err := r.Subscribe("a.b", func(Message) error { return errors.New("boom") }, nil, 0)
	require.NoError(t, err)
	_, err = r.Subscribe("a.b", func(Message) error { return nil }, nil, 0)
	require.NoError(t, err)

	assert.NoError(t, r.Route(Message{Topic: "a.b"}))
}

func TestRouter_WildcardMatching(t *testing.T) {
	r := NewRouter()
	var got []string
	var mu sync.Mutex
	_, err := r.Subscribe("orders.#", func(m Message) error {
		mu.Lock()
		got = append(got, m.Topic)
		mu.Unlock()
		return nil
	}, nil, 0)
	require.NoError(t, err)

	require.NoError(t, r.Route(Message{Topic: "orders.created"}))
	require.NoError(t, r.Route(Message{Topic: "orders.created.eu"}))
	err = r.Route(Message{Topic: "shipments.created"})
	assert.ErrorIs(t, err, core.ErrNoSubscribers)

	assert.ElementsMatch(t, []string{"orders.created", "orders.created.eu"}, got)
}

func TestRouter_Count(t *testing.T) {
	r := NewRouter()
	assert.Equal(t, 0, r.Count())
	id, err := r.Subscribe("a.b", func(Message) error { return nil }, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count())
	require.NoError(t, r.Unsubscribe(id))
	assert.Equal(t, 0, r.Count())
}
