package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/core"
)

func TestInMemoryStore_GetCreatesLazily(t *testing.T) {
	store := NewInMemoryStore()

	sess, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Empty(t, sess.GetEvents())
}

func TestInMemoryStore_GetReturnsClone(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.AppendEvent("sess-1", core.NewMessageEvent("inv-1", "agent", "one")))

	sess, err := store.Get("sess-1")
	require.NoError(t, err)

	// Mutating the returned session must not leak into the store.
	sess.AddEvent(core.NewMessageEvent("inv-1", "agent", "local only"))
	sess.SetState("k", "local")

	fresh, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Len(t, fresh.GetEvents(), 1)
	_, ok := fresh.GetState("k")
	assert.False(t, ok)
}

func TestInMemoryStore_AppendAndDelta(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.AppendEvent("sess-1", core.NewMessageEvent("inv-1", "agent", "one")))
	require.NoError(t, store.AppendEvent("sess-1", core.NewMessageEvent("inv-1", "agent", "two")))
	require.NoError(t, store.ApplyDelta("sess-1", map[string]any{"step": 2}))

	sess, err := store.Get("sess-1")
	require.NoError(t, err)

	events := sess.GetEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Content.Text())
	assert.Equal(t, "two", events[1].Content.Text())

	v, ok := sess.GetState("step")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestInMemoryStore_CreateResets(t *testing.T) {
	store := NewInMemoryStore()
	require.NoError(t, store.AppendEvent("sess-1", core.NewMessageEvent("inv-1", "agent", "old")))

	_, err := store.Create("sess-1")
	require.NoError(t, err)

	sess, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.GetEvents())
}
