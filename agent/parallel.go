package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agentloom/agentloom/core"
)

// mergeItem is one slot on the fan-in queue: either a child event paired with
// its single-use resume gate, or a completion sentinel for one child.
type mergeItem struct {
	ev   core.Event
	gate chan struct{} // closed by the consumer once the event was handed upstream
	done bool          // sentinel: the child's sequence ended naturally
}

// runParallel spawns one producer task per child, each driving that child's
// event sequence under an isolated, branch-extended context, and merges all
// branches through a single shared queue.
//
// Each producer holds at most one unconsumed event on the queue: after
// pushing an item it blocks on the item's gate until the consumer has handed
// the event upstream. The consumer pops in arrival order, which reflects the
// true completion order of heterogeneous-speed branches, and returns once it
// has counted one sentinel per child.
//
// A failing child cancels all sibling producers and the failure is re-raised
// from here; if the upstream consumer stops early, the deferred cancel
// unwinds every producer and its child sequence before returning.
//
// Note: unlike Sequential and Loop, Parallel does not stop early when a child
// event carries a pause request; branches keep producing until their
// sequences end. Whether parallel branches should cooperatively pause is an
// open design question, so the observed behavior is kept as is.
func (n *Node) runParallel(ictx *core.InvocationContext) error {
	if len(n.children) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ictx.Context)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan mergeItem)

	for _, child := range n.children {
		g.Go(func() error {
			return n.produce(gctx, ictx, child, queue)
		})
	}

	var consumeErr error
	finished := 0
merge:
	for finished < len(n.children) {
		select {
		case item := <-queue:
			if item.done {
				finished++
				continue
			}
			if err := ictx.Yield(item.ev); err != nil {
				consumeErr = err
				break merge
			}
			close(item.gate)
		case <-gctx.Done():
			// A producer failed or the parent was cancelled; stop merging
			// and collect the cause from the group below.
			break merge
		}
	}

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("parallel agent %s: %w", n.name, err)
	}
	if consumeErr != nil {
		return consumeErr
	}
	return ictx.Err()
}

// produce drives a single child under its isolated branch context, pushing
// each event onto the shared queue with a fresh gate and waiting for the
// consumer before pulling the child's next event. On the child's natural end
// it pushes a completion sentinel and terminates.
func (n *Node) produce(ctx context.Context, parent *core.InvocationContext, child *Node, queue chan<- mergeItem) error {
	childEmit := make(chan core.Event)
	childResume := make(chan struct{}, 1)
	branch := buildBranchPath(parent.Branch, n.name+"."+child.name)
	childCtx := parent.NewChildInvocationContext(childEmit, childResume, branch).WithContext(ctx)
	childCtx.Agent = child.info()

	done := make(chan error, 1)
	go func() { done <- child.Run(childCtx) }()

	for {
		select {
		case ev := <-childEmit:
			gate := make(chan struct{})
			select {
			case queue <- mergeItem{ev: ev, gate: gate}:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case <-gate:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case childResume <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-done:
			if err != nil {
				return fmt.Errorf("branch %s: %w", child.name, err)
			}
			select {
			case queue <- mergeItem{done: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		case <-ctx.Done():
			// The child goroutine unwinds on the same context through its
			// own emit/resume selects.
			return ctx.Err()
		}
	}
}
