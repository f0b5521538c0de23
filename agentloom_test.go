package agentloom

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/agent"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/model"
	"github.com/agentloom/agentloom/session"
)

func TestNew_RejectsInvalidTree(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	// Duplicate names fail validation.
	noop := agent.ExecutorFunc(func(*core.InvocationContext) error { return nil })
	_, err = New(agent.NewSequential("team",
		agent.NewLeaf("twin", noop),
		agent.NewLeaf("twin", noop),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRunSync_ModelLeaf(t *testing.T) {
	scripted := model.NewScriptedModel(model.TextResponse("hello from the loom"))
	loom, err := New(agent.NewLeaf("assistant", agent.NewModelExecutor(scripted)))
	require.NoError(t, err)

	events, err := loom.RunSync(context.Background(), "sess-1", NewUserText("hi"))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "assistant", events[0].Author)
	assert.Equal(t, "hello from the loom", events[0].Content.Text())
}

func TestRunSync_PipelinePersistsAcrossTurns(t *testing.T) {
	store := session.NewInMemoryStore()
	loom, err := New(
		agent.NewSequential("pipeline",
			agent.NewLeaf("drafter", agent.ExecutorFunc(func(ictx *core.InvocationContext) error {
				return ictx.Yield(core.NewMessageEvent(ictx.InvocationID, "drafter", "draft"))
			})),
			agent.NewLeaf("reviewer", agent.ExecutorFunc(func(ictx *core.InvocationContext) error {
				return ictx.Yield(core.NewMessageEvent(ictx.InvocationID, "reviewer", "approved"))
			})),
		),
		func(o *Options) { o.SessionStore = store },
	)
	require.NoError(t, err)

	events, err := loom.RunSync(context.Background(), "sess-1", NewUserText("write it"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "drafter", events[0].Author)
	assert.Equal(t, "reviewer", events[1].Author)

	sess, err := store.Get("sess-1")
	require.NoError(t, err)
	assert.Len(t, sess.GetEvents(), 3, "user message plus both agent events")
}

func TestRunSync_PropagatesExecutorError(t *testing.T) {
	boom := errors.New("boom")
	loom, err := New(agent.NewLeaf("assistant", agent.ExecutorFunc(func(*core.InvocationContext) error {
		return boom
	})))
	require.NoError(t, err)

	_, err = loom.RunSync(context.Background(), "sess-1", NewUserText("go"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestNewUserText(t *testing.T) {
	content := NewUserText("hello")
	assert.Equal(t, "user", content.Role)
	assert.Equal(t, "hello", content.Text())
}
