package agent

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// Executor produces a leaf agent's events by delegating to external
// collaborators (model, tools). Implementations must produce every event via
// ictx.Yield so the resume-gate protocol holds end to end, and must respect
// context cancellation while waiting on collaborators.
type Executor interface {
	Execute(ictx *core.InvocationContext) error
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ictx *core.InvocationContext) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ictx *core.InvocationContext) error { return f(ictx) }

func (n *Node) runLeaf(ictx *core.InvocationContext) error {
	if n.executor == nil {
		return fmt.Errorf("leaf agent %s has no executor", n.name)
	}
	leafCtx := *ictx
	leafCtx.Agent = n.info()
	return n.executor.Execute(&leafCtx)
}
