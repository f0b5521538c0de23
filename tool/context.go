package tool

import (
	"context"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
)

// Context is the per-call execution context handed to a tool. It exposes
// read access to session state and stages control-flow actions; staged
// actions are applied to the function response event after the call returns,
// so a tool never mutates the event log directly.
type Context struct {
	ictx           *core.InvocationContext
	functionCallID string
	actions        core.EventActions
}

// NewContext creates a tool context for one function call.
func NewContext(ictx *core.InvocationContext, functionCallID string) *Context {
	return &Context{ictx: ictx, functionCallID: functionCallID}
}

// FunctionCallID returns the id of the function call being served. It
// correlates the model's request with the tool's response event.
func (c *Context) FunctionCallID() string { return c.functionCallID }

// Context returns the cancellation context of the surrounding invocation.
func (c *Context) Context() context.Context {
	if c.ictx == nil {
		return context.Background()
	}
	return c.ictx.Context
}

// InvocationID returns the id of the surrounding invocation.
func (c *Context) InvocationID() string {
	if c.ictx == nil {
		return ""
	}
	return c.ictx.InvocationID
}

// AgentName returns the name of the agent that issued the call.
func (c *Context) AgentName() string {
	if c.ictx == nil {
		return ""
	}
	return c.ictx.Agent.Name
}

// Logger returns the invocation logger, or a no-op logger outside one.
func (c *Context) Logger() logging.Logger {
	if c.ictx == nil || c.ictx.Logger == nil {
		return logging.NoOpLogger{}
	}
	return c.ictx.Logger
}

// GetState reads a key from the current session state snapshot.
func (c *Context) GetState(key string) (any, bool) {
	if c.ictx == nil {
		return nil, false
	}
	return c.ictx.GetState(key)
}

// SetState stages a state mutation. It lands in the response event's state
// delta and is applied to the session when that event is committed.
func (c *Context) SetState(key string, value any) {
	if c.actions.StateDelta == nil {
		c.actions.StateDelta = map[string]any{}
	}
	c.actions.StateDelta[key] = value
}

// TransferToAgent stages a control transfer to the named agent.
func (c *Context) TransferToAgent(name string) {
	c.actions.TransferToAgent = &name
}

// Escalate stages an escalation signal, which stops the enclosing sequential
// or loop composition.
func (c *Context) Escalate() {
	c.actions.Escalate = true
}

// ApplyActions merges the staged actions onto the function response event.
func (c *Context) ApplyActions(ev *core.Event) {
	if c.actions.StateDelta != nil {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range c.actions.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}
	if c.actions.TransferToAgent != nil {
		ev.Actions.TransferToAgent = c.actions.TransferToAgent
	}
	if c.actions.Escalate {
		ev.Actions.Escalate = true
	}
}
