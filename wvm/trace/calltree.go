package trace

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// CallNode is one function activation.
type CallNode struct {
	Entry    uint16
	Closure  uint8
	Direct   bool // reached by CALL rather than CALL_IND
	Steps    int  // instructions executed in this activation, callees excluded
	Children []*CallNode
}

func (n *CallNode) add(entry uint16, closure uint8, direct bool) *CallNode {
	child := &CallNode{Entry: entry, Closure: closure, Direct: direct}
	n.Children = append(n.Children, child)
	return child
}

func (n *CallNode) label() string {
	if n.Direct || n.Closure == 0 {
		return fmt.Sprintf("@%d steps=%d", n.Entry, n.Steps)
	}
	return fmt.Sprintf("@%d closure=%d steps=%d", n.Entry, n.Closure, n.Steps)
}

func (n *CallNode) toTree(t treeprint.Tree) {
	for _, c := range n.Children {
		if len(c.Children) == 0 {
			t.AddNode(c.label())
			continue
		}
		c.toTree(t.AddBranch(c.label()))
	}
}

// CallTree is the tree of activations of one run.
type CallTree struct {
	Root *CallNode
}

// Calls counts every activation below the root.
func (ct *CallTree) Calls() int {
	if ct.Root == nil {
		return 0
	}
	var count func(n *CallNode) int
	count = func(n *CallNode) int {
		total := len(n.Children)
		for _, c := range n.Children {
			total += count(c)
		}
		return total
	}
	return count(ct.Root)
}

// Render draws the tree.
func (ct *CallTree) Render() string {
	if ct.Root == nil {
		return "(no calls)\n"
	}
	tree := treeprint.NewWithRoot("entry " + ct.Root.label())
	ct.Root.toTree(tree)
	return tree.String()
}
