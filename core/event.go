package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UserAuthor is the author recorded on externally supplied (caller) events.
const UserAuthor = "user"

// EventActions encodes orchestration signals attached to an Event. The kernel
// inspects Escalate and PauseRequested while composing agents; StateDelta and
// TransferToAgent are applied by the runner after persistence.
type EventActions struct {
	// StateDelta stages opaque key/value mutations to session state.
	StateDelta map[string]any `json:"state_delta,omitempty"`
	// TransferToAgent requests a handoff to the named agent.
	TransferToAgent *string `json:"transfer_to_agent,omitempty"`
	// Escalate aborts the enclosing composite and all of its ancestors.
	Escalate bool `json:"escalate,omitempty"`
	// PauseRequested suspends the whole invocation until external input
	// arrives; the conversation stays resumable from the log.
	PauseRequested bool `json:"pause_requested,omitempty"`
}

// Event is the sole unit of communication between the kernel and its callers.
// It is created by an agent node, appended to the session log by the runner
// and treated as immutable afterwards. Ordering within a session is append
// order; Branch identifies which concurrent lineage produced the event
// (dot-separated, empty at the root lineage).
type Event struct {
	ID                 string       `json:"id"`
	InvocationID       string       `json:"invocation_id"`
	Author             string       `json:"author"`
	Branch             string       `json:"branch,omitempty"`
	Actions            EventActions `json:"actions"`
	LongRunningToolIDs []string     `json:"long_running_tool_ids,omitempty"`
	Timestamp          time.Time    `json:"timestamp"`
	Content            *Content     `json:"content,omitempty"`
	Partial            bool         `json:"partial,omitempty"`
	ErrorMessage       string       `json:"error_message,omitempty"`
	// CacheMetadata is attached by an external cache collaborator and is
	// never interpreted by the kernel.
	CacheMetadata json.RawMessage `json:"cache_metadata,omitempty"`
}

// NewEvent creates a bare event authored by author bound to an invocation.
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(invocationID, author, message string) Event {
	e := NewEvent(invocationID, author)
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: message}}}
	return e
}

// NewUserContentEvent creates a user-authored event with arbitrary content.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, UserAuthor)
	e.Content = content
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named
// function/tool.
func NewFunctionCallEvent(invocationID, author string, call FunctionCall) Event {
	e := NewEvent(invocationID, author)
	e.Content = &Content{Role: "assistant", Parts: []Part{FunctionCallPart{FunctionCall: call}}}
	return e
}

// NewFunctionResponseEvent records the completion result (or error) of a
// previously emitted function call.
func NewFunctionResponseEvent(invocationID, author, id, name string, result any, err error) Event {
	e := NewEvent(invocationID, author)
	fr := FunctionResponse{ID: id, Name: name, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a unique identifier for events and invocations.
func NewID() string { return uuid.NewString() }

// GetFunctionCalls returns any FunctionCall parts contained within the event
// content preserving their original order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts contained within
// the event content preserving their original order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse reports whether the event completes an assistant turn: no
// pending tool calls or responses and not a streaming fragment. Events that
// carry long-running tool ids are final because the turn suspends there.
func (e Event) IsFinalResponse() bool {
	if len(e.LongRunningToolIDs) > 0 {
		return true
	}
	return len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0 &&
		!e.Partial
}
