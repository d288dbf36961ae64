// Package deletion plans and executes the removal of a subtree.
//
// The Planner walks the subtree once, decides for every reachable node
// whether it is deleted or only unshared (it stays live under a parent
// outside the subtree), validates deletability, and emits the nodes in
// post-order: descendants always come before their ancestors. The Executor
// applies a plan node by node, collecting per-node outcomes instead of
// aborting on the first failure.
package deletion

import (
	"strings"
	"sync/atomic"

	"github.com/marmos91/dittotree/pkg/tree"
)

// Action is what the executor does with one plan entry.
type Action int

const (
	// ActionDelete soft-deletes the node and every incoming edge
	ActionDelete Action = iota

	// ActionUnshare removes only the entry's Parents edges; the node stays
	// live under its other parents
	ActionUnshare
)

func (a Action) String() string {
	if a == ActionUnshare {
		return "unshare"
	}
	return "delete"
}

// Entry is one node of a plan.
type Entry struct {
	Node *tree.Node

	// Parents are the edges this plan removes from the node: the plan's
	// parent for the root, the in-plan parents otherwise.
	Parents []tree.NodeID

	Action Action
}

// Plan is the ordered output of the Planner. It is consumed exactly once by
// Executor.Execute and never persisted.
type Plan struct {
	// ID groups the audit revisions written while executing the plan.
	ID string

	User tree.User

	// Path is the human-readable primary path of the root at planning time.
	Path string

	// Parent is the node the root is removed from.
	Parent tree.NodeID

	entries  []Entry
	deleting map[tree.NodeID]struct{}
	consumed atomic.Bool
}

// Entries returns the plan in execution order (descendants first).
func (p *Plan) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Nodes returns the plan's node identifiers in execution order.
func (p *Plan) Nodes() []tree.NodeID {
	ids := make([]tree.NodeID, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.Node.ID
	}
	return ids
}

// Final returns the last entry, which is always the root.
func (p *Plan) Final() Entry {
	return p.entries[len(p.entries)-1]
}

// Root returns the root's identifier.
func (p *Plan) Root() tree.NodeID {
	return p.Final().Node.ID
}

// Len returns the number of entries.
func (p *Plan) Len() int {
	return len(p.entries)
}

// Deletes reports whether the plan soft-deletes id.
func (p *Plan) Deletes(id tree.NodeID) bool {
	_, ok := p.deleting[id]
	return ok
}

func (p *Plan) String() string {
	var b strings.Builder
	b.WriteString(p.Path)
	b.WriteString(" [")
	for i, e := range p.entries {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e.Node.Name)
		if e.Action == ActionUnshare {
			b.WriteString("(unshare)")
		}
	}
	b.WriteString("]")
	return b.String()
}
