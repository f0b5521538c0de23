package agent

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// Run executes the node, streaming every produced event through the context's
// emit/resume gate. It returns once the node's event sequence ends, an
// escalate or pause signal stops it, or a child failure propagates up.
func (n *Node) Run(ictx *core.InvocationContext) error {
	switch n.kind {
	case KindLeaf:
		return n.runLeaf(ictx)
	case KindSequential:
		return n.runSequential(ictx)
	case KindLoop:
		return n.runLoop(ictx)
	case KindParallel:
		return n.runParallel(ictx)
	default:
		return fmt.Errorf("agent %s: unknown kind %d", n.name, n.kind)
	}
}

// runChild drives one child subtree through an intercept channel. Every child
// event is forwarded upward (and acknowledged by the upstream consumer)
// before the child is allowed to produce its next one; inspect observes each
// event after that handoff completes. Returns the child's terminal error.
func runChild(ictx *core.InvocationContext, child *Node, inspect func(core.Event)) error {
	childEmit := make(chan core.Event)
	childResume := make(chan struct{}, 1)
	childCtx := ictx.NewChildInvocationContext(childEmit, childResume, "")
	childCtx.Agent = child.info()

	done := make(chan error, 1)
	go func() { done <- child.Run(childCtx) }()

	for {
		select {
		case ev := <-childEmit:
			if err := ictx.Yield(ev); err != nil {
				return err
			}
			if inspect != nil {
				inspect(ev)
			}
			select {
			case childResume <- struct{}{}:
			case <-ictx.Done():
				return ictx.Err()
			}
		case err := <-done:
			return err
		case <-ictx.Done():
			return ictx.Err()
		}
	}
}

// runSequential drains each child in list order, yielding events upward as
// they arrive. An escalate flag stops iteration permanently; a pause request
// stops it resumably. A child that produces no events simply advances
// iteration to the next child.
func (n *Node) runSequential(ictx *core.InvocationContext) error {
	for _, child := range n.children {
		var escalated, paused bool
		err := runChild(ictx, child, func(ev core.Event) {
			if ev.Actions.Escalate {
				escalated = true
			}
			if ev.Actions.PauseRequested {
				paused = true
			}
		})
		if err != nil {
			return fmt.Errorf("sequential agent %s: child %s: %w", n.name, child.name, err)
		}
		if escalated || paused {
			// The signal event already flowed upward, so every ancestor
			// observes it through its own forwarding loop.
			return nil
		}
	}
	return nil
}

// runLoop repeats the full child list up to the configured iteration cap,
// behaving like runSequential within one pass. Escalate is the only
// deliberate exit mechanism besides exhausting the cap; pause suspends the
// loop resumably. Either signal stops the whole loop, not just the pass.
func (n *Node) runLoop(ictx *core.InvocationContext) error {
	if len(n.children) == 0 {
		return nil
	}
	for i := 0; n.maxIterations == 0 || i < n.maxIterations; i++ {
		for _, child := range n.children {
			var stop bool
			err := runChild(ictx, child, func(ev core.Event) {
				if ev.Actions.Escalate || ev.Actions.PauseRequested {
					stop = true
				}
			})
			if err != nil {
				return fmt.Errorf("loop agent %s: iteration %d: child %s: %w", n.name, i+1, child.name, err)
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}
