package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Defaults(t *testing.T) {
	ev := NewEvent("inv-1", "agent")

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "inv-1", ev.InvocationID)
	assert.Equal(t, "agent", ev.Author)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Nil(t, ev.Content)
}

func TestEvent_GetFunctionCalls(t *testing.T) {
	ev := NewEvent("inv-1", "agent")
	ev.Content = &Content{
		Role: "assistant",
		Parts: []Part{
			TextPart{Text: "calling tools"},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "fc1", Name: "alpha"}},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "fc2", Name: "beta"}},
		},
	}

	calls := ev.GetFunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "alpha", calls[0].Name)
	assert.Equal(t, "beta", calls[1].Name)
	assert.Empty(t, ev.GetFunctionResponses())
}

func TestEvent_IsFinalResponse(t *testing.T) {
	plain := NewMessageEvent("inv-1", "agent", "done")
	assert.True(t, plain.IsFinalResponse())

	partial := NewMessageEvent("inv-1", "agent", "chunk")
	partial.Partial = true
	assert.False(t, partial.IsFinalResponse())

	withCall := NewFunctionCallEvent("inv-1", "agent", FunctionCall{ID: "fc1", Name: "tool"})
	assert.False(t, withCall.IsFinalResponse())

	withResponse := NewFunctionResponseEvent("inv-1", "agent", "fc1", "tool", "ok", nil)
	assert.False(t, withResponse.IsFinalResponse())

	// A pending long-running call suspends the turn, which makes it final.
	longRunning := NewFunctionCallEvent("inv-1", "agent", FunctionCall{ID: "lr1", Name: "tool"})
	longRunning.LongRunningToolIDs = []string{"lr1"}
	assert.True(t, longRunning.IsFinalResponse())
}

func TestNewFunctionResponseEvent_RecordsError(t *testing.T) {
	ev := NewFunctionResponseEvent("inv-1", "agent", "fc1", "tool", nil, errors.New("boom"))

	responses := ev.GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "boom", responses[0].Error)
	assert.Equal(t, "tool", ev.Content.Role)
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	target := "specialist"
	ev := NewEvent("inv-1", "agent")
	ev.Branch = "fanout.web"
	ev.Actions = EventActions{
		StateDelta:      map[string]any{"k": "v"},
		TransferToAgent: &target,
		Escalate:        true,
		PauseRequested:  true,
	}
	ev.LongRunningToolIDs = []string{"lr1"}
	ev.Content = &Content{
		Role: "assistant",
		Parts: []Part{
			TextPart{Text: "hello"},
			DataPart{Data: map[string]any{"score": "high"}},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "fc1", Name: "tool", Arguments: `{"a":1}`}},
			FunctionResponsePart{FunctionResponse: FunctionResponse{ID: "fc1", Name: "tool", Response: "ok"}},
		},
	}
	ev.CacheMetadata = json.RawMessage(`{"stamp":"abc"}`)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, ev.Branch, decoded.Branch)
	assert.True(t, decoded.Actions.Escalate)
	assert.True(t, decoded.Actions.PauseRequested)
	require.NotNil(t, decoded.Actions.TransferToAgent)
	assert.Equal(t, "specialist", *decoded.Actions.TransferToAgent)
	assert.Equal(t, []string{"lr1"}, decoded.LongRunningToolIDs)
	assert.JSONEq(t, `{"stamp":"abc"}`, string(decoded.CacheMetadata))

	require.NotNil(t, decoded.Content)
	require.Len(t, decoded.Content.Parts, 4)
	assert.Equal(t, "hello", decoded.Content.Text())

	calls := decoded.GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, `{"a":1}`, calls[0].Arguments)

	responses := decoded.GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "ok", responses[0].Response)

	data2, ok := decoded.Content.Parts[1].(DataPart)
	require.True(t, ok)
	assert.Equal(t, "high", data2.Data["score"])
}

func TestContent_UnmarshalUnknownPartType(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{"role":"assistant","parts":[{"type":"video"}]}`), &c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown content part type")
}
