package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/core"
)

func TestSequential_RunsChildrenInOrder(t *testing.T) {
	seq := NewSequential("pipeline",
		emitter("first", "one", "two"),
		emitter("second", "three"),
		emitter("third", "four"),
	)

	events, err := runAndCollect(t, context.Background(), seq)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three", "four"}, texts(events))
	assert.Equal(t, "first", events[0].Author)
	assert.Equal(t, "third", events[3].Author)
}

func TestSequential_NoChildren(t *testing.T) {
	events, err := runAndCollect(t, context.Background(), NewSequential("empty"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSequential_EscalateStopsIteration(t *testing.T) {
	seq := NewSequential("pipeline",
		emitter("first", "one"),
		signaler("second", core.EventActions{Escalate: true}),
		emitter("third", "never"),
	)

	events, err := runAndCollect(t, context.Background(), seq)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.True(t, events[1].Actions.Escalate)
	assert.NotContains(t, texts(events), "never")
}

func TestSequential_PauseStopsIteration(t *testing.T) {
	seq := NewSequential("pipeline",
		signaler("first", core.EventActions{PauseRequested: true}),
		emitter("second", "never"),
	)

	events, err := runAndCollect(t, context.Background(), seq)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.True(t, events[0].Actions.PauseRequested)
}

func TestSequential_SignalEventStillForwarded(t *testing.T) {
	// The event carrying the stop signal must reach the consumer before the
	// composite unwinds, so ancestors observe the same signal.
	seq := NewSequential("outer",
		NewSequential("inner",
			signaler("child", core.EventActions{Escalate: true}),
		),
		emitter("after", "never"),
	)

	events, err := runAndCollect(t, context.Background(), seq)
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "child", events[0].Author)
	assert.True(t, events[0].Actions.Escalate)
}

func TestSequential_ChildErrorWrapped(t *testing.T) {
	childErr := errors.New("boom")
	failing := NewLeaf("bad", ExecutorFunc(func(*core.InvocationContext) error { return childErr }))
	seq := NewSequential("pipeline", emitter("ok", "one"), failing, emitter("never", "x"))

	events, err := runAndCollect(t, context.Background(), seq)
	require.Error(t, err)
	assert.ErrorIs(t, err, childErr)
	assert.Contains(t, err.Error(), "sequential agent pipeline")
	assert.Contains(t, err.Error(), "child bad")
	assert.Equal(t, []string{"one"}, texts(events))
}

func TestSequential_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	blocked := NewLeaf("blocked", ExecutorFunc(func(ictx *core.InvocationContext) error {
		return ictx.Yield(core.NewMessageEvent(ictx.InvocationID, "blocked", "x"))
	}))

	_, err := runAndCollect(t, ctx, NewSequential("pipeline", blocked))
	assert.ErrorIs(t, err, context.Canceled)
}
