package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentloom/agentloom/logging"
)

// AgentInfo carries identifying details about the agent bound to a context.
type AgentInfo struct{ Name, Kind string }

// ContextCache is the external collaborator that avoids redundant model
// context uploads. The kernel never interprets the metadata; it only attaches
// the opaque stamp to events on their way into the log.
type ContextCache interface {
	Stamp(sessionID string) json.RawMessage
}

// InvocationContext carries the per-call, non-persisted state for one agent
// execution path. It holds the ambient cancellation context, identifiers, the
// branch label for the current lineage, the emit/resume channel pair used to
// stream events upward, and handles to external collaborators.
//
// The emit protocol is a rendezvous: a producer sends one event on Emit, then
// blocks on Resume until the consumer acknowledges. Every forwarding layer
// obeys the same protocol, which bounds each lineage to at most one
// unconsumed event at a time.
//
// For parallel composition each child receives its own derived copy with a
// branch extended by "<parent>.<child>"; copies share the session reference
// but have independent delta buffers, so one branch's bookkeeping cannot
// corrupt another's.
type InvocationContext struct {
	Context                 context.Context
	SessionID, InvocationID string
	Agent                   AgentInfo
	UserContent             Content
	Emit                    chan<- Event
	Resume                  <-chan struct{}
	SessionService          SessionStore
	Session                 *Session
	StateDelta              map[string]any
	Branch                  string
	Limiter                 *CallLimiter
	Cache                   ContextCache
	Logger                  logging.Logger
}

// NewInvocationContext constructs an InvocationContext with an empty staged
// state delta.
func NewInvocationContext(
	ctx context.Context,
	sessionID, invocationID string,
	agent AgentInfo,
	userContent Content,
	emit chan<- Event,
	resume <-chan struct{},
	sess *Session,
	sessionService SessionStore,
	logger logging.Logger,
) *InvocationContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &InvocationContext{
		Context:        ctx,
		SessionID:      sessionID,
		InvocationID:   invocationID,
		Agent:          agent,
		UserContent:    userContent,
		Emit:           emit,
		Resume:         resume,
		Session:        sess,
		SessionService: sessionService,
		StateDelta:     map[string]any{},
		Logger:         logger,
	}
}

// Done mirrors context.Context's Done.
func (ic *InvocationContext) Done() <-chan struct{} { return ic.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (ic *InvocationContext) Err() error { return ic.Context.Err() }

// GetState returns a staged (delta) value if present, else the persisted
// session value. The boolean reports whether a value was found.
func (ic *InvocationContext) GetState(k string) (any, bool) {
	if v, ok := ic.StateDelta[k]; ok {
		return v, true
	}
	if ic.Session != nil {
		return ic.Session.GetState(k)
	}
	return nil, false
}

// SetState stages a state mutation; it is merged into the next emitted event.
func (ic *InvocationContext) SetState(k string, v any) { ic.StateDelta[k] = v }

// GetSessionHistory returns all historical events for the session.
func (ic *InvocationContext) GetSessionHistory() []Event {
	if ic.Session == nil {
		return []Event{}
	}
	return ic.Session.GetEvents()
}

// RefreshSession reloads the session snapshot from the SessionStore.
func (ic *InvocationContext) RefreshSession() error {
	if ic.SessionService == nil {
		return fmt.Errorf("session service not configured")
	}
	s, err := ic.SessionService.Get(ic.SessionID)
	if err != nil {
		return err
	}
	ic.Session = s
	return nil
}

// NewChildInvocationContext derives a context for a nested execution path. It
// replaces the Emit & Resume channels, resets the staged StateDelta buffer,
// and optionally sets a branch label if non-empty. Composite agents use this
// to intercept child output without mutating the parent's transient buffers.
func (ic *InvocationContext) NewChildInvocationContext(emit chan<- Event, resume <-chan struct{}, branch string) *InvocationContext {
	finalBranch := ic.Branch
	if branch != "" {
		finalBranch = branch
	}
	return &InvocationContext{
		Context:        ic.Context,
		SessionID:      ic.SessionID,
		InvocationID:   ic.InvocationID,
		Agent:          ic.Agent,
		UserContent:    ic.UserContent,
		Emit:           emit,
		Resume:         resume,
		SessionService: ic.SessionService,
		Session:        ic.Session,
		StateDelta:     map[string]any{},
		Branch:         finalBranch,
		Limiter:        ic.Limiter,
		Cache:          ic.Cache,
		Logger:         ic.Logger,
	}
}

// WithContext returns a copy bound to a different cancellation context.
// Parallel composition uses this so every branch unwinds when the merge is
// cancelled.
func (ic *InvocationContext) WithContext(ctx context.Context) *InvocationContext {
	c := *ic
	c.Context = ctx
	c.StateDelta = map[string]any{}
	for k, v := range ic.StateDelta {
		c.StateDelta[k] = v
	}
	return &c
}

// EmitEvent merges the staged StateDelta into ev.Actions, stamps the branch,
// and sends the event on the Emit channel. If the context is cancelled before
// emission it returns the cancellation error.
func (ic *InvocationContext) EmitEvent(ev Event) error {
	if len(ic.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range ic.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}
	if ev.Branch == "" {
		ev.Branch = ic.Branch
	}
	select {
	case <-ic.Context.Done():
		return ic.Context.Err()
	case ic.Emit <- ev:
	}
	ic.StateDelta = map[string]any{}
	return nil
}

// WaitForResume blocks until the Resume channel signals or the context is
// cancelled. If Resume is nil it returns immediately.
func (ic *InvocationContext) WaitForResume() error {
	if ic.Resume == nil {
		return nil
	}
	select {
	case <-ic.Resume:
		return nil
	case <-ic.Context.Done():
		return ic.Context.Err()
	}
}

// Yield emits one event and blocks until the consumer has acknowledged it.
// This is the producer half of the resume-gate protocol; agents should
// produce every event through it.
func (ic *InvocationContext) Yield(ev Event) error {
	if err := ic.EmitEvent(ev); err != nil {
		return err
	}
	return ic.WaitForResume()
}
