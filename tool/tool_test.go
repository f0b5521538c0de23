package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
)

func newToolContext(t *testing.T) *Context {
	t.Helper()
	emit := make(chan core.Event, 1)
	ictx := core.NewInvocationContext(
		context.Background(), "sess-1", "inv-1",
		core.AgentInfo{Name: "agent", Kind: "leaf"},
		core.Content{},
		emit, nil,
		core.NewSession("sess-1"), nil,
		logging.NoOpLogger{},
	)
	return NewContext(ictx, "fc1")
}

func sumTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(tc *Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)
}

func TestFunctionTool_Call(t *testing.T) {
	result, err := sumTool().Call(newToolContext(t), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_MissingRequiredArgument(t *testing.T) {
	_, err := sumTool().Call(newToolContext(t), map[string]any{"a": 2.0})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Contains(t, toolErr.Message, "b")
}

func TestFunctionTool_TypeMismatch(t *testing.T) {
	_, err := sumTool().Call(newToolContext(t), map[string]any{"a": "two", "b": 3.0})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_IntegerAcceptsWholeFloat(t *testing.T) {
	echo := NewFunctionTool(
		"echo_count", "Echo a count",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"n": map[string]any{"type": "integer"},
			},
			"required": []any{"n"},
		},
		func(tc *Context, args map[string]any) (any, error) { return args["n"], nil },
	)

	// Decoded JSON numbers arrive as float64.
	_, err := echo.Call(newToolContext(t), map[string]any{"n": 3.0})
	assert.NoError(t, err)

	_, err = echo.Call(newToolContext(t), map[string]any{"n": 3.5})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
}

func TestFunctionTool_ExecutionErrorWrapped(t *testing.T) {
	failing := NewFunctionTool(
		"flaky", "Always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(*Context, map[string]any) (any, error) { return nil, errors.New("backend down") },
	)

	_, err := failing.Call(newToolContext(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
	assert.Equal(t, "backend down", toolErr.Message)
}

func TestFunctionTool_ToolErrorPassesThrough(t *testing.T) {
	custom := NewToolError("quota", "limit reached", "RATE_LIMITED")
	failing := NewFunctionTool(
		"quota", "Rate limited",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(*Context, map[string]any) (any, error) { return nil, custom },
	)

	_, err := failing.Call(newToolContext(t), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Same(t, custom, toolErr)
}

func TestFunctionTool_LongRunning(t *testing.T) {
	plain := sumTool()
	assert.False(t, IsLongRunning(plain))

	lr := NewFunctionTool(
		"request_approval", "Ask a human",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(*Context, map[string]any) (any, error) { return nil, nil },
		WithLongRunning(),
	)
	assert.True(t, IsLongRunning(lr))
}

func TestContext_StagedActionsApply(t *testing.T) {
	tc := newToolContext(t)
	tc.SetState("k", "v")
	tc.TransferToAgent("specialist")
	tc.Escalate()

	ev := core.NewEvent("inv-1", "agent")
	tc.ApplyActions(&ev)

	assert.Equal(t, "v", ev.Actions.StateDelta["k"])
	require.NotNil(t, ev.Actions.TransferToAgent)
	assert.Equal(t, "specialist", *ev.Actions.TransferToAgent)
	assert.True(t, ev.Actions.Escalate)
}

func TestContext_ReadsSessionState(t *testing.T) {
	tc := newToolContext(t)
	tc.ictx.Session.SetState("model", "sonnet")

	v, ok := tc.GetState("model")
	require.True(t, ok)
	assert.Equal(t, "sonnet", v)

	assert.Equal(t, "fc1", tc.FunctionCallID())
	assert.Equal(t, "inv-1", tc.InvocationID())
	assert.Equal(t, "agent", tc.AgentName())
}

func TestTransferToAgentTool(t *testing.T) {
	tr := NewTransferToAgentTool()
	tc := newToolContext(t)

	result, err := tr.Call(tc, map[string]any{"agent": "billing"})
	require.NoError(t, err)
	assert.NotNil(t, result)

	ev := core.NewEvent("inv-1", "agent")
	tc.ApplyActions(&ev)
	require.NotNil(t, ev.Actions.TransferToAgent)
	assert.Equal(t, "billing", *ev.Actions.TransferToAgent)
}

func TestTransferToAgentTool_MissingTarget(t *testing.T) {
	_, err := NewTransferToAgentTool().Call(newToolContext(t), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent")

	_, err = NewTransferToAgentTool().Call(newToolContext(t), map[string]any{"agent": ""})
	require.Error(t, err)
}

func TestExitLoopTool(t *testing.T) {
	tc := newToolContext(t)

	result, err := NewExitLoopTool().Call(tc, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"exited": true}, result)

	ev := core.NewEvent("inv-1", "agent")
	tc.ApplyActions(&ev)
	assert.True(t, ev.Actions.Escalate)
}
