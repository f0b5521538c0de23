package agent

import (
	"fmt"
)

// Tree is the arena holding a fixed agent hierarchy. Nodes are stored in
// preorder with a name index for O(1) lookups during backward log scans, and
// parent back-references are plain indices, so no owning cycle can form.
//
// Agent names must be unique across the whole tree: log-based resolution
// depends on an author name identifying exactly one node across process
// restarts. NewTree enforces this at construction time.
type Tree struct {
	nodes  []*Node
	index  map[string]int
	parent []int
}

// NewTree flattens the hierarchy rooted at root into an arena, validating
// that every node name is unique and every leaf has an executor.
func NewTree(root *Node) (*Tree, error) {
	if root == nil {
		return nil, fmt.Errorf("agent tree requires a root node")
	}
	t := &Tree{index: map[string]int{}}
	if err := t.add(root, -1); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) add(n *Node, parentIdx int) error {
	if n.name == "" {
		return fmt.Errorf("agent node requires a non-empty name")
	}
	if _, exists := t.index[n.name]; exists {
		return fmt.Errorf("duplicate agent name %q in tree", n.name)
	}
	if n.kind == KindLeaf && n.executor == nil {
		return fmt.Errorf("leaf agent %q has no executor", n.name)
	}
	if n.kind == KindLeaf && len(n.children) > 0 {
		return fmt.Errorf("leaf agent %q cannot have children", n.name)
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.parent = append(t.parent, parentIdx)
	t.index[n.name] = idx
	for _, child := range n.children {
		if child == nil {
			return fmt.Errorf("agent %q has a nil child", n.name)
		}
		if err := t.add(child, idx); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the entry agent of the tree.
func (t *Tree) Root() *Node { return t.nodes[0] }

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int { return len(t.nodes) }

// Find returns the node with the given name, if any.
func (t *Tree) Find(name string) (*Node, bool) {
	idx, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.nodes[idx], true
}

// ParentOf returns the parent of the named node, or nil for the root or an
// unknown name.
func (t *Tree) ParentOf(name string) *Node {
	idx, ok := t.index[name]
	if !ok || t.parent[idx] < 0 {
		return nil
	}
	return t.nodes[t.parent[idx]]
}

// Transferable reports whether log-based resolution may land on the named
// node: the node itself and every ancestor strictly below the root must be a
// leaf capable of agent-to-agent transfer with transfer-to-parent allowed.
// The root is always a valid resolution target and is not checked here.
func (t *Tree) Transferable(name string) bool {
	idx, ok := t.index[name]
	if !ok {
		return false
	}
	for idx > 0 {
		n := t.nodes[idx]
		if n.kind != KindLeaf || n.disallowTransferToParent {
			return false
		}
		idx = t.parent[idx]
	}
	return true
}
