package acl

import (
	"context"
	"time"

	"github.com/marmos91/dittotree/pkg/tree"
)

// Repropagate re-derives effective ACLs below root after root's effective
// ACL changed. It walks live primary edges breadth-first, stops at
// Suppressed edges, and refreshes (but does not descend through) share
// edges. Changed edges and nodes are written through tx.
//
// Returns the descendants whose effective ACL changed.
func Repropagate(ctx context.Context, tx tree.Tx, root *tree.Node, now time.Time) ([]*tree.Node, error) {
	var changed []*tree.Node
	queue := []*tree.Node{root}
	visited := map[tree.NodeID]struct{}{root.ID: {}}

	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		edges, err := tree.LiveChildEdges(ctx, tx, parent.ID)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			if !Propagates(edge.Mode) {
				continue
			}

			child, err := tx.GetNode(ctx, edge.Child)
			if err != nil {
				return nil, err
			}

			before := child.EffectiveACL
			if !Apply(parent, edge, child) {
				continue
			}

			edge.ModifiedAt = now
			if err := tx.PutEdge(ctx, edge); err != nil {
				return nil, err
			}
			if !edge.Primary() || child.EffectiveACL == before {
				continue
			}
			if _, seen := visited[child.ID]; seen {
				continue
			}
			visited[child.ID] = struct{}{}

			child.ModifiedAt = now
			if err := tx.PutNode(ctx, child); err != nil {
				return nil, err
			}
			changed = append(changed, child)
			queue = append(queue, child)
		}
	}

	return changed, nil
}

// Refresh recomputes node.EffectiveACL from its live primary parent (its
// own ACL when it has none) and every live share edge pointing at it.
// Changed edges are written; node is not.
func Refresh(ctx context.Context, tx tree.Tx, node *tree.Node, now time.Time) error {
	parents, err := tree.LiveParentEdges(ctx, tx, node.ID)
	if err != nil {
		return err
	}

	if tree.PrimaryEdge(parents) == nil {
		node.EffectiveACL = node.ACL
	}

	for _, edge := range parents {
		parent, err := tx.GetNode(ctx, edge.Parent)
		if err != nil {
			return err
		}
		if !Apply(parent, edge, node) {
			continue
		}
		edge.ModifiedAt = now
		if err := tx.PutEdge(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

// Detach re-derives ACLs after node lost an incoming edge: node is
// refreshed from its remaining parents and, when its effective ACL changed,
// written and propagated to its subtree.
//
// Returns the nodes (node first) whose effective ACL changed.
func Detach(ctx context.Context, tx tree.Tx, node *tree.Node, now time.Time) ([]*tree.Node, error) {
	before := node.EffectiveACL
	if err := Refresh(ctx, tx, node, now); err != nil {
		return nil, err
	}
	if node.EffectiveACL == before {
		return nil, nil
	}

	node.ModifiedAt = now
	if err := tx.PutNode(ctx, node); err != nil {
		return nil, err
	}
	descendants, err := Repropagate(ctx, tx, node, now)
	if err != nil {
		return nil, err
	}
	return append([]*tree.Node{node}, descendants...), nil
}
