// Package agentloom provides a high-level façade over the agent composition
// kernel and the invocation runner. Most applications interact with it by:
//  1. Building an agent tree from leaves and composites (agent package)
//  2. Creating a Loom via New() (optionally overriding the default
//     in-memory session store, logger, plugins and metrics)
//  3. Running invocations asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// ergonomics concise. All defaults are safe for local development and tests;
// production deployments typically supply a durable session store and a
// structured logger.
package agentloom

import (
	"context"

	"github.com/agentloom/agentloom/agent"
	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
	"github.com/agentloom/agentloom/plugin"
	"github.com/agentloom/agentloom/runner"
	"github.com/agentloom/agentloom/telemetry"
)

// Options configures the Loom instance.
type Options struct {
	// EventBufferSize sets the channel buffer size for delivered events.
	EventBufferSize int

	// MaxModelCalls limits model calls per invocation (0 = unlimited).
	MaxModelCalls int

	// SessionStore defaults to an in-memory implementation when nil.
	SessionStore core.SessionStore

	// Cache optionally stamps events with opaque context-cache metadata.
	Cache core.ContextCache

	// Plugins are lifecycle hooks run around every invocation.
	Plugins []plugin.Plugin

	// Logger defaults to a no-op logger when nil.
	Logger logging.Logger

	// Metrics defaults to a no-op recorder when nil.
	Metrics telemetry.Recorder
}

// Loom aggregates a validated agent tree and the runner that executes it.
type Loom struct {
	tree   *agent.Tree
	runner *runner.Runner
}

// New validates the hierarchy rooted at root and wires a runner around it.
func New(root *agent.Node, optFns ...func(o *Options)) (*Loom, error) {
	opts := Options{
		EventBufferSize: 100,
		MaxModelCalls:   100,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	tree, err := agent.NewTree(root)
	if err != nil {
		return nil, err
	}

	r := runner.New(tree, func(o *runner.Options) {
		o.EventBufferSize = opts.EventBufferSize
		o.MaxModelCalls = opts.MaxModelCalls
		if opts.SessionStore != nil {
			o.SessionStore = opts.SessionStore
		}
		o.Cache = opts.Cache
		o.Plugins = opts.Plugins
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
		if opts.Metrics != nil {
			o.Metrics = opts.Metrics
		}
	})

	return &Loom{tree: tree, runner: r}, nil
}

// Tree returns the validated agent tree.
func (l *Loom) Tree() *agent.Tree { return l.tree }

// Run starts an asynchronous invocation for one user message.
func (l *Loom) Run(ctx context.Context, sessionID string, content core.Content) (string, <-chan core.Event, <-chan error, error) {
	return l.runner.Run(ctx, sessionID, content)
}

// RunSync runs one invocation to completion and returns all delivered events.
func (l *Loom) RunSync(ctx context.Context, sessionID string, content core.Content) ([]core.Event, error) {
	_, eventsCh, errorsCh, err := l.runner.Run(ctx, sessionID, content)
	if err != nil {
		return nil, err
	}

	var events []core.Event
	for eventsCh != nil || errorsCh != nil {
		select {
		case ev, ok := <-eventsCh:
			if !ok {
				eventsCh = nil
				continue
			}
			events = append(events, ev)
		case err, ok := <-errorsCh:
			if !ok {
				errorsCh = nil
				continue
			}
			if err != nil {
				return events, err
			}
		}
	}
	return events, nil
}

// RunLive drives a session from an inbound content channel.
func (l *Loom) RunLive(ctx context.Context, sessionID string, contents <-chan core.Content) (<-chan core.Event, <-chan error, error) {
	return l.runner.RunLive(ctx, sessionID, contents)
}

// Cancel cancels a running invocation by id.
func (l *Loom) Cancel(invocationID string) error { return l.runner.Cancel(invocationID) }

// NewUserText is a convenience constructor for single-text user content.
func NewUserText(text string) core.Content {
	return core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: text}}}
}
