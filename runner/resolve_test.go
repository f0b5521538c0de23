package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/agent"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/internal/testutil"
)

// resolveRunner builds a runner over a tree exercising every resolution rule:
//
//	team (sequential root)
//	├── frontdesk            transferable leaf
//	├── expert               transferable leaf
//	├── background           leaf with transfer-to-parent disallowed
//	└── squad (sequential)
//	    └── worker           leaf behind a composite, not transferable
func resolveRunner(t *testing.T) *Runner {
	t.Helper()
	noop := agent.ExecutorFunc(func(*core.InvocationContext) error { return nil })
	root := agent.NewSequential("team",
		agent.NewLeaf("frontdesk", noop),
		agent.NewLeaf("expert", noop),
		agent.NewLeaf("background", noop, agent.WithDisallowTransferToParent()),
		agent.NewSequential("squad", agent.NewLeaf("worker", noop)),
	)
	tree, err := agent.NewTree(root)
	require.NoError(t, err)
	return New(tree)
}

func TestFindAgentToRun_EmptyLogFallsBackToRoot(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Build()
	assert.Equal(t, "team", r.findAgentToRun(sess).Name())

	sess = testutil.NewSessionBuilder("sess-1").
		Event(testutil.NewEventBuilder().Author(core.UserAuthor).UserText("hello").Build()).
		Build()
	assert.Equal(t, "team", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_LastTransferableAuthorWins(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author(core.UserAuthor).UserText("hi").Build(),
		testutil.NewEventBuilder().Author("frontdesk").AssistantText("routing").Build(),
		testutil.NewEventBuilder().Author("expert").AssistantText("answer").Build(),
		testutil.NewEventBuilder().Author(core.UserAuthor).UserText("more").Build(),
	).Build()

	assert.Equal(t, "expert", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_RootNameSelectsRoot(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("expert").AssistantText("earlier").Build(),
		testutil.NewEventBuilder().Author("team").AssistantText("summary").Build(),
	).Build()

	assert.Equal(t, "team", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_NonTransferableAuthorSkipped(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("frontdesk").AssistantText("earlier").Build(),
		testutil.NewEventBuilder().Author("background").AssistantText("side note").Build(),
	).Build()

	// The scan skips the non-transferable author and lands on frontdesk.
	assert.Equal(t, "frontdesk", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_UnknownAuthorSkipped(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("expert").AssistantText("earlier").Build(),
		testutil.NewEventBuilder().Author("stranger").AssistantText("imported").Build(),
	).Build()

	assert.Equal(t, "expert", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_CompositeDescendantNotTransferable(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("worker").AssistantText("nested work").Build(),
	).Build()

	// A leaf behind a composite cannot be resolved directly; fall back to root.
	assert.Equal(t, "team", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_PendingFunctionCallRoutesToAuthor(t *testing.T) {
	r := resolveRunner(t)

	// The pending call wins even over later transferable authors, and even
	// though its own author is non-transferable.
	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("background").FunctionCall("fc1", "index_docs", "{}").Build(),
		testutil.NewEventBuilder().Author("expert").AssistantText("meanwhile").Build(),
	).Build()

	assert.Equal(t, "background", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_RespondedCallIsNotPending(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("background").FunctionCall("fc1", "index_docs", "{}").Build(),
		testutil.NewEventBuilder().Author("background").FunctionResponse("fc1", "index_docs", "done", nil).Build(),
		testutil.NewEventBuilder().Author("expert").AssistantText("back to work").Build(),
	).Build()

	assert.Equal(t, "expert", r.findAgentToRun(sess).Name())
}

func TestFindAgentToRun_LongRunningPauseResumesToAuthor(t *testing.T) {
	r := resolveRunner(t)

	parked := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author(core.UserAuthor).UserText("approve this").Build(),
		testutil.NewEventBuilder().Author("expert").
			FunctionCall("lr1", "request_approval", "{}").
			LongRunning("lr1").PauseRequested().Build(),
		testutil.NewEventBuilder().Author(core.UserAuthor).UserText("still thinking").Build(),
	).Build()

	// While the approval is outstanding, every new turn routes back to the
	// parked agent.
	assert.Equal(t, "expert", r.findAgentToRun(parked).Name())

	// Once the response lands in the log, normal author resolution applies.
	resumed := parked.Clone()
	resumed.AddEvent(testutil.NewEventBuilder().Author(core.UserAuthor).
		FunctionResponse("lr1", "request_approval", map[string]any{"approved": true}, nil).Build())
	resumed.AddEvent(testutil.NewEventBuilder().Author("frontdesk").AssistantText("approved, wrapping up").Build())

	assert.Equal(t, "frontdesk", r.findAgentToRun(resumed).Name())
}

func TestFindAgentToRun_CallsWithoutIDsIgnored(t *testing.T) {
	r := resolveRunner(t)

	sess := testutil.NewSessionBuilder("sess-1").Events(
		testutil.NewEventBuilder().Author("background").FunctionCall("", "legacy_tool", "{}").Build(),
		testutil.NewEventBuilder().Author("expert").AssistantText("latest").Build(),
	).Build()

	// A call without an id cannot be matched to a response and never parks
	// the conversation.
	assert.Equal(t, "expert", r.findAgentToRun(sess).Name())
}
