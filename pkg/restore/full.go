package restore

import (
	"context"
	"time"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
)

// restoration is the plan of one FullRestore, built before any write.
type restoration struct {
	order    []tree.NodeID
	nodes    map[tree.NodeID]*tree.Node
	edges    map[tree.NodeID][]tree.Edge
	relinked []tree.NodeID
}

func (s *restoration) has(id tree.NodeID) bool {
	_, ok := s.nodes[id]
	return ok
}

func (s *restoration) add(node *tree.Node, edges []tree.Edge) {
	s.order = append(s.order, node.ID)
	s.nodes[node.ID] = node
	s.edges[node.ID] = edges
}

// FullRestore brings deletedID back from the soft-deleted state.
//
// The edges the node lost when it was deleted are re-created. Any ancestor
// on its primary path that is itself deleted is restored first, recursively,
// so the node is reachable again. Descendants removed by the same deletion
// are restored with it, and nodes that the same deletion only unshared are
// linked back. Only the owner of the node or a privileged user may restore.
//
// Returns:
//   - *RestoreResult: Every node brought back, with the top-level one
//   - error: ErrNotDeleted when the node is live, ErrPermissionDenied,
//     ErrNotFound when no deletion revision exists
func (r *Restorer) FullRestore(ctx context.Context, user tree.User, deletedID tree.NodeID) (*RestoreResult, error) {
	logger.Debug("FullRestore: node=%s user=%s", deletedID, user.ID)

	var plan *restoration
	revived := make(map[tree.NodeID][]*tree.Edge)

	err := r.store.Update(ctx, func(tx tree.Tx) error {
		for k := range revived {
			delete(revived, k)
		}

		node, err := tx.GetNode(ctx, deletedID)
		if err != nil {
			return err
		}
		if !node.Deleted {
			return tree.NewError(tree.ErrNotDeleted, deletedID, "node is not deleted")
		}
		if !r.canRestore(user, node) {
			return tree.NewPermissionDeniedError(user.ID, "restore", deletedID)
		}

		plan = &restoration{
			nodes: make(map[tree.NodeID]*tree.Node),
			edges: make(map[tree.NodeID][]tree.Edge),
		}
		if err := r.planAncestors(ctx, tx, plan, node); err != nil {
			return err
		}
		if err := r.planDescendants(ctx, tx, plan, node); err != nil {
			return err
		}

		now := r.clock()
		for _, id := range plan.order {
			n := plan.nodes[id]
			n.Deleted = false
			n.DeletedAt = time.Time{}
			n.DeletedBy = ""
			n.ModifiedAt = now
			if err := tx.PutNode(ctx, n); err != nil {
				return err
			}
		}

		// Edges are revived once every planned node is live again, so an
		// edge between two restored nodes is never skipped.
		for _, id := range append(append([]tree.NodeID{}, plan.order...), plan.relinked...) {
			for _, snap := range plan.edges[id] {
				edge, err := r.reviveEdge(ctx, tx, snap, now)
				if err != nil {
					return err
				}
				if edge != nil {
					revived[id] = append(revived[id], edge)
				}
			}
		}

		for _, id := range plan.order {
			n := plan.nodes[id]
			before := n.EffectiveACL
			if err := acl.Refresh(ctx, tx, n, now); err != nil {
				return err
			}
			if n.EffectiveACL == before {
				continue
			}
			if err := tx.PutNode(ctx, n); err != nil {
				return err
			}
		}

		for _, id := range plan.relinked {
			n, err := tx.GetNode(ctx, id)
			if err != nil {
				return err
			}
			if _, err := acl.Detach(ctx, tx, n, now); err != nil {
				return err
			}
			plan.nodes[id] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, id := range plan.order {
		result.Restored = append(result.Restored, plan.nodes[id])
	}
	for _, id := range plan.relinked {
		result.Relinked = append(result.Relinked, plan.nodes[id])
	}
	result.TopLevel = result.Restored[0]

	r.record(ctx, user, newOperationID(), append(append([]*tree.Node{}, result.Restored...), result.Relinked...), revived)

	logger.Info("FullRestore: node=%s restored %d nodes, relinked %d", deletedID, len(result.Restored), len(result.Relinked))
	return result, nil
}

// planAncestors adds node to the plan after every deleted ancestor on the
// primary path recorded by its deletion.
func (r *Restorer) planAncestors(ctx context.Context, tx tree.Tx, plan *restoration, node *tree.Node) error {
	if plan.has(node.ID) {
		return nil
	}

	rev, err := r.latestOfKind(ctx, node.ID, audit.ChangeDelete)
	if err != nil {
		return err
	}
	if rev == nil {
		return tree.NewError(tree.ErrNotFound, node.ID, "no deletion revision")
	}

	for _, e := range rev.Snapshot.Edges {
		if !e.Primary() {
			continue
		}
		parent, err := tx.GetNode(ctx, e.Parent)
		if err != nil {
			return err
		}
		if parent.Deleted {
			if err := r.planAncestors(ctx, tx, plan, parent); err != nil {
				return err
			}
		}
	}

	plan.add(node, rev.Snapshot.Edges)
	return nil
}

// planDescendants adds the nodes deleted by the same operation as root
// below it, and records live children the operation unshared from a
// restored node.
func (r *Restorer) planDescendants(ctx context.Context, tx tree.Tx, plan *restoration, root *tree.Node) error {
	rootRev, err := r.latestOfKind(ctx, root.ID, audit.ChangeDelete)
	if err != nil || rootRev == nil || rootRev.OperationID == "" {
		return err
	}
	opID := rootRev.OperationID

	relinked := make(map[tree.NodeID]struct{})
	queue := []tree.NodeID{root.ID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		edges, err := tx.ChildEdges(ctx, id)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if e.Live() || plan.has(e.Child) {
				continue
			}
			child, err := tx.GetNode(ctx, e.Child)
			if err != nil {
				return err
			}

			if child.Deleted {
				rev, err := r.latestOfKind(ctx, child.ID, audit.ChangeDelete)
				if err != nil {
					return err
				}
				if rev == nil || rev.OperationID != opID {
					continue
				}
				plan.add(child, rev.Snapshot.Edges)
				queue = append(queue, child.ID)
				continue
			}

			rev, err := r.latestOfKind(ctx, child.ID, audit.ChangeUnshare)
			if err != nil {
				return err
			}
			if rev == nil || rev.OperationID != opID {
				continue
			}
			for _, snap := range rev.Snapshot.Edges {
				if snap.Parent != id {
					continue
				}
				if _, seen := relinked[child.ID]; !seen {
					relinked[child.ID] = struct{}{}
					plan.relinked = append(plan.relinked, child.ID)
				}
				plan.edges[child.ID] = append(plan.edges[child.ID], snap)
			}
		}
	}
	return nil
}

// reviveEdge re-creates a deleted edge from its snapshot. Edges whose parent
// is still deleted, that are already live, or that would now close a cycle
// are left alone (nil is returned).
func (r *Restorer) reviveEdge(ctx context.Context, tx tree.Tx, snap tree.Edge, now time.Time) (*tree.Edge, error) {
	parent, err := tx.GetNode(ctx, snap.Parent)
	if err != nil {
		return nil, err
	}
	if parent.Deleted {
		return nil, nil
	}

	edge, err := tx.GetEdge(ctx, snap.Parent, snap.Child)
	if err != nil {
		return nil, err
	}
	if edge.Live() {
		return nil, nil
	}

	if snap.Primary() {
		parents, err := tree.LiveParentEdges(ctx, tx, snap.Child)
		if err != nil {
			return nil, err
		}
		if tree.PrimaryEdge(parents) != nil {
			logger.Warn("FullRestore: %s already has a primary parent, not relinking under %s", snap.Child, snap.Parent)
			return nil, nil
		}
	}

	cycle, err := tree.IsAncestor(ctx, tx, snap.Child, snap.Parent)
	if err != nil {
		return nil, err
	}
	if cycle {
		logger.Warn("FullRestore: relinking %s would close a cycle, skipping", &snap)
		return nil, nil
	}

	edge.Deleted = false
	edge.Mode = snap.Mode
	edge.Owner = snap.Owner
	edge.ModifiedAt = now
	if err := tx.PutEdge(ctx, edge); err != nil {
		return nil, err
	}
	return edge, nil
}
