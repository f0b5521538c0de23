package agent

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloom/agentloom/core"
)

func TestParallel_MergesAllBranches(t *testing.T) {
	par := NewParallel("fanout",
		emitter("a", "a1", "a2"),
		emitter("b", "b1"),
		emitter("c", "c1", "c2", "c3"),
	)

	events, err := runAndCollect(t, context.Background(), par)
	require.NoError(t, err)
	require.Len(t, events, 6)

	got := texts(events)
	sort.Strings(got)
	assert.Equal(t, []string{"a1", "a2", "b1", "c1", "c2", "c3"}, got)
}

func TestParallel_NoChildren(t *testing.T) {
	events, err := runAndCollect(t, context.Background(), NewParallel("empty"))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParallel_BranchLabels(t *testing.T) {
	par := NewParallel("fanout", emitter("a", "x"), emitter("b", "y"))

	events, err := runAndCollect(t, context.Background(), par)
	require.NoError(t, err)
	require.Len(t, events, 2)

	branches := map[string]string{}
	for _, ev := range events {
		branches[ev.Author] = ev.Branch
	}
	assert.Equal(t, "fanout.a", branches["a"])
	assert.Equal(t, "fanout.b", branches["b"])
}

func TestParallel_PerBranchOrderPreserved(t *testing.T) {
	par := NewParallel("fanout",
		emitter("a", "a1", "a2", "a3"),
		emitter("b", "b1", "b2", "b3"),
	)

	events, err := runAndCollect(t, context.Background(), par)
	require.NoError(t, err)

	var aSeq, bSeq []string
	for _, ev := range events {
		switch ev.Author {
		case "a":
			aSeq = append(aSeq, ev.Content.Text())
		case "b":
			bSeq = append(bSeq, ev.Content.Text())
		}
	}
	assert.Equal(t, []string{"a1", "a2", "a3"}, aSeq)
	assert.Equal(t, []string{"b1", "b2", "b3"}, bSeq)
}

func TestParallel_ArrivalOrderReflectsCompletion(t *testing.T) {
	slow := NewLeaf("slow", ExecutorFunc(func(ictx *core.InvocationContext) error {
		time.Sleep(60 * time.Millisecond)
		return ictx.Yield(core.NewMessageEvent(ictx.InvocationID, "slow", "slow done"))
	}))
	fast := NewLeaf("fast", ExecutorFunc(func(ictx *core.InvocationContext) error {
		return ictx.Yield(core.NewMessageEvent(ictx.InvocationID, "fast", "fast done"))
	}))

	events, err := runAndCollect(t, context.Background(), NewParallel("race", slow, fast))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "fast done", events[0].Content.Text())
	assert.Equal(t, "slow done", events[1].Content.Text())
}

func TestParallel_ChildFailureCancelsSiblings(t *testing.T) {
	childErr := errors.New("branch failed")
	failing := NewLeaf("bad", ExecutorFunc(func(*core.InvocationContext) error { return childErr }))

	var cancelled atomic.Bool
	endless := NewLeaf("endless", ExecutorFunc(func(ictx *core.InvocationContext) error {
		for {
			if err := ictx.Yield(core.NewMessageEvent(ictx.InvocationID, "endless", "tick")); err != nil {
				cancelled.Store(true)
				return err
			}
		}
	}))

	_, err := runAndCollect(t, context.Background(), NewParallel("fanout", failing, endless))
	require.Error(t, err)
	assert.ErrorIs(t, err, childErr)
	assert.Contains(t, err.Error(), "parallel agent fanout")
	assert.Contains(t, err.Error(), "branch bad")

	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond,
		"surviving branch should unwind after sibling failure")
}

func TestParallel_PauseDoesNotStopBranches(t *testing.T) {
	// Unlike Sequential and Loop, a pause request on one branch does not
	// stop the others; the merge runs every branch to its natural end.
	par := NewParallel("fanout",
		signaler("parker", core.EventActions{PauseRequested: true}),
		emitter("worker", "w1", "w2"),
	)

	events, err := runAndCollect(t, context.Background(), par)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestParallel_BackpressureOneInFlightPerBranch(t *testing.T) {
	// Each branch may have at most one event pending consumer acknowledgment:
	// the producer blocks on its gate until the consumer yields the event
	// upward. With a deliberately stalled consumer, every branch emits its
	// first event and cannot proceed to the second.
	var produced atomic.Int32
	makeChild := func(name string) *Node {
		return NewLeaf(name, ExecutorFunc(func(ictx *core.InvocationContext) error {
			for i := 0; i < 3; i++ {
				produced.Add(1)
				if err := ictx.Yield(core.NewMessageEvent(ictx.InvocationID, name, "m")); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	par := NewParallel("fanout", makeChild("a"), makeChild("b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit := make(chan core.Event)
	resume := make(chan struct{}, 1)
	ictx := newTestContext(ctx, emit, resume)

	done := make(chan error, 1)
	go func() { done <- par.Run(ictx) }()

	// Stall: never read from emit. Both branches emit their first event and
	// stop; counts must not exceed one in-flight per branch.
	assert.Eventually(t, func() bool { return produced.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), produced.Load())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("parallel agent did not unwind after cancellation")
	}
}

func TestParallel_ConsumerCancellationUnwinds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	par := NewParallel("fanout",
		emitter("a", "a1", "a2", "a3"),
		emitter("b", "b1", "b2", "b3"),
	)

	emit := make(chan core.Event)
	resume := make(chan struct{}, 1)
	ictx := newTestContext(ctx, emit, resume)

	done := make(chan error, 1)
	go func() { done <- par.Run(ictx) }()

	// Consume one event, then cancel mid-stream.
	select {
	case <-emit:
		resume <- struct{}{}
	case <-time.After(time.Second):
		t.Fatal("no event arrived")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("parallel agent did not unwind after cancellation")
	}
}
