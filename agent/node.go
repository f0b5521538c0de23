package agent

import (
	"fmt"

	"github.com/agentloom/agentloom/core"
)

// Kind tags the closed set of agent node variants. Composition algorithms
// switch exhaustively over it; adding a kind is a compile-visible change.
type Kind uint8

const (
	// KindLeaf is a node that produces events by delegating to external
	// collaborators (model, tools) through an Executor.
	KindLeaf Kind = iota
	// KindSequential runs its children strictly in list order.
	KindSequential
	// KindLoop repeats its child list up to a configured iteration cap.
	KindLoop
	// KindParallel runs its children concurrently, merging their event
	// streams through the fan-in merger.
	KindParallel
)

// String returns the lowercase kind label.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequential:
		return "sequential"
	case KindLoop:
		return "loop"
	case KindParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Node is one agent in the tree. The tree shape is fixed for the lifetime of
// a process; nodes are read-only during execution. Parent relations live in
// the Tree arena as plain indices, never as owning pointers.
type Node struct {
	kind        Kind
	name        string
	description string
	children    []*Node

	// Loop only. Zero means unbounded.
	maxIterations int

	// Leaf only.
	executor                 Executor
	disallowTransferToParent bool
}

// LeafOption customizes leaf node construction.
type LeafOption func(*Node)

// WithDescription sets the node description.
func WithDescription(desc string) LeafOption {
	return func(n *Node) { n.description = desc }
}

// WithDisallowTransferToParent marks the leaf as unreachable by log-based
// resolution: upward agent-to-agent handoff through it is forbidden.
func WithDisallowTransferToParent() LeafOption {
	return func(n *Node) { n.disallowTransferToParent = true }
}

// NewLeaf creates a leaf agent node that delegates event production to exec.
func NewLeaf(name string, exec Executor, opts ...LeafOption) *Node {
	n := &Node{
		kind:        KindLeaf,
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		executor:    exec,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// NewSequential creates a composite node that drains each child in order.
func NewSequential(name string, children ...*Node) *Node {
	return &Node{
		kind:        KindSequential,
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		children:    children,
	}
}

// NewLoop creates a composite node that repeats its child list up to
// maxIterations full passes (0 = unbounded; the loop then exits only via an
// escalate or pause signal from a child).
func NewLoop(name string, maxIterations int, children ...*Node) *Node {
	return &Node{
		kind:          KindLoop,
		name:          name,
		description:   fmt.Sprintf("Agent %s", name),
		children:      children,
		maxIterations: maxIterations,
	}
}

// NewParallel creates a composite node that runs its children concurrently
// under isolated branch contexts.
func NewParallel(name string, children ...*Node) *Node {
	return &Node{
		kind:        KindParallel,
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
		children:    children,
	}
}

// Kind returns the node variant tag.
func (n *Node) Kind() Kind { return n.kind }

// Name returns the node's unique name.
func (n *Node) Name() string { return n.name }

// Description returns a short description of the node's purpose.
func (n *Node) Description() string { return n.description }

// Children returns a shallow copy of the ordered child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// MaxIterations returns the loop iteration cap (0 = unbounded).
func (n *Node) MaxIterations() int { return n.maxIterations }

// info builds the AgentInfo recorded on contexts bound to this node.
func (n *Node) info() core.AgentInfo {
	return core.AgentInfo{Name: n.name, Kind: n.kind.String()}
}
