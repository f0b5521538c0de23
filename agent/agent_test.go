package agent

import (
	"context"
	"testing"

	"github.com/agentloom/agentloom/core"
	"github.com/agentloom/agentloom/logging"
)

// newTestContext builds an invocation context wired to the given emit/resume
// pair with an in-memory session.
func newTestContext(ctx context.Context, emit chan core.Event, resume chan struct{}) *core.InvocationContext {
	userContent := core.Content{Role: "user", Parts: []core.Part{core.TextPart{Text: "test input"}}}
	return core.NewInvocationContext(
		ctx, "test-session", "test-invocation",
		core.AgentInfo{Name: "root", Kind: "test"},
		userContent,
		emit, resume,
		core.NewSession("test-session"), nil,
		logging.NoOpLogger{},
	)
}

// runAndCollect drives node.Run as the consumer half of the resume gate,
// acknowledging every event, and returns the full event sequence plus the
// terminal error.
func runAndCollect(t *testing.T, ctx context.Context, n *Node) ([]core.Event, error) {
	t.Helper()

	emit := make(chan core.Event)
	resume := make(chan struct{}, 1)
	ictx := newTestContext(ctx, emit, resume)

	done := make(chan error, 1)
	go func() { done <- n.Run(ictx) }()

	var events []core.Event
	for {
		select {
		case ev := <-emit:
			events = append(events, ev)
			resume <- struct{}{}
		case err := <-done:
			return events, err
		case <-ctx.Done():
			return events, ctx.Err()
		}
	}
}

// emitter returns a leaf that yields one text event per message.
func emitter(name string, messages ...string) *Node {
	return NewLeaf(name, ExecutorFunc(func(ictx *core.InvocationContext) error {
		for _, msg := range messages {
			if err := ictx.Yield(core.NewMessageEvent(ictx.InvocationID, name, msg)); err != nil {
				return err
			}
		}
		return nil
	}))
}

// signaler returns a leaf that yields one event with the given actions.
func signaler(name string, actions core.EventActions) *Node {
	return NewLeaf(name, ExecutorFunc(func(ictx *core.InvocationContext) error {
		ev := core.NewMessageEvent(ictx.InvocationID, name, "signal")
		ev.Actions = actions
		return ictx.Yield(ev)
	}))
}

// texts extracts the text payloads of all events in order.
func texts(events []core.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Content != nil {
			out = append(out, ev.Content.Text())
		}
	}
	return out
}
