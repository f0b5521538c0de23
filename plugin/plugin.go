// Package plugin provides lifecycle hooks around invocation execution.
//
// Plugins observe and optionally redirect an invocation at fixed points:
// user message intake, run start, every produced event, and run end. Hooks
// run synchronously in registration order, so implementations should be fast
// and must not panic.
package plugin

import (
	"context"

	"github.com/agentloom/agentloom/core"
)

// Plugin defines the lifecycle hooks a plugin may implement. Embed NoOp to
// implement only a subset.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// OnUserMessage runs before the user's content is committed to the log.
	// Returning a non-nil Content replaces the user message; the first
	// plugin to do so wins and later plugins see nothing.
	OnUserMessage(ctx context.Context, ictx *core.InvocationContext, message core.Content) (*core.Content, error)

	// BeforeRun runs after the user message is committed but before the
	// resolved agent executes. Returning a non-nil Content short-circuits
	// the run: the content is emitted as the invocation's only response and
	// the agent never executes.
	BeforeRun(ctx context.Context, ictx *core.InvocationContext) (*core.Content, error)

	// OnEvent observes every event after it is appended to the session but
	// before it is delivered to the caller. Returning a non-nil Event
	// replaces the delivered event; the appended one is already immutable.
	OnEvent(ctx context.Context, ictx *core.InvocationContext, ev core.Event) (*core.Event, error)

	// AfterRun runs once the invocation's event stream has been fully
	// drained, regardless of how it ended.
	AfterRun(ctx context.Context, ictx *core.InvocationContext) error
}

// NoOp is a Plugin with no behavior, intended for embedding.
type NoOp struct{}

// Name implements Plugin.
func (NoOp) Name() string { return "noop" }

// OnUserMessage implements Plugin.
func (NoOp) OnUserMessage(context.Context, *core.InvocationContext, core.Content) (*core.Content, error) {
	return nil, nil
}

// BeforeRun implements Plugin.
func (NoOp) BeforeRun(context.Context, *core.InvocationContext) (*core.Content, error) {
	return nil, nil
}

// OnEvent implements Plugin.
func (NoOp) OnEvent(context.Context, *core.InvocationContext, core.Event) (*core.Event, error) {
	return nil, nil
}

// AfterRun implements Plugin.
func (NoOp) AfterRun(context.Context, *core.InvocationContext) error { return nil }

// Manager fans each hook out to the registered plugins in registration
// order. A hook error stops the chain and propagates to the runner, which
// aborts the invocation.
//
// Registration is not synchronized; register all plugins before running
// invocations. Hook execution itself is safe for concurrent use afterwards.
type Manager struct {
	plugins []Plugin
}

// NewManager creates a Manager over the given plugins.
func NewManager(plugins ...Plugin) *Manager {
	return &Manager{plugins: plugins}
}

// Register appends another plugin to the chain.
func (m *Manager) Register(p Plugin) { m.plugins = append(m.plugins, p) }

// RunOnUserMessage returns the first replacement content produced by a
// plugin, or nil when every plugin passes.
func (m *Manager) RunOnUserMessage(ctx context.Context, ictx *core.InvocationContext, message core.Content) (*core.Content, error) {
	for _, p := range m.plugins {
		replaced, err := p.OnUserMessage(ctx, ictx, message)
		if err != nil {
			return nil, err
		}
		if replaced != nil {
			return replaced, nil
		}
	}
	return nil, nil
}

// RunBeforeRun returns the first short-circuit content produced by a plugin,
// or nil when the run should proceed.
func (m *Manager) RunBeforeRun(ctx context.Context, ictx *core.InvocationContext) (*core.Content, error) {
	for _, p := range m.plugins {
		content, err := p.BeforeRun(ctx, ictx)
		if err != nil {
			return nil, err
		}
		if content != nil {
			return content, nil
		}
	}
	return nil, nil
}

// RunOnEvent threads the event through every plugin, letting each replace it
// in turn, and returns the final event to deliver.
func (m *Manager) RunOnEvent(ctx context.Context, ictx *core.InvocationContext, ev core.Event) (core.Event, error) {
	for _, p := range m.plugins {
		replaced, err := p.OnEvent(ctx, ictx, ev)
		if err != nil {
			return ev, err
		}
		if replaced != nil {
			ev = *replaced
		}
	}
	return ev, nil
}

// RunAfterRun notifies every plugin that the invocation finished.
func (m *Manager) RunAfterRun(ctx context.Context, ictx *core.InvocationContext) error {
	for _, p := range m.plugins {
		if err := p.AfterRun(ctx, ictx); err != nil {
			return err
		}
	}
	return nil
}
