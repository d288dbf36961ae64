package mutator

import (
	"context"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
)

// RemoveChild soft-removes the edge from parentID to childID.
//
// The last live parent of a node cannot be removed this way: that is a
// deletion and goes through the deletion planner. When the removed edge was
// the child's primary placement, the child becomes a root of its own and
// its subtree's effective ACLs are re-derived.
//
// Returns:
//   - error: ErrNotFound if no live edge links the pair,
//     ErrPermissionDenied, ErrInvalidPlacement for the last parent
func (m *Mutator) RemoveChild(ctx context.Context, user tree.User, parentID, childID tree.NodeID) error {
	logger.Debug("RemoveChild: parent=%s child=%s user=%s", parentID, childID, user.ID)

	var changes []change

	err := m.store.Update(ctx, func(tx tree.Tx) error {
		edge, parent, child, err := m.liveEdge(ctx, tx, parentID, childID)
		if err != nil {
			return err
		}
		if !acl.CanUnshare(ctx, m.checker, user, edge, parent, child) {
			return tree.NewPermissionDeniedError(user.ID, "unshare", childID)
		}

		parents, err := tree.LiveParentEdges(ctx, tx, childID)
		if err != nil {
			return err
		}
		if len(parents) <= 1 {
			return tree.NewError(tree.ErrInvalidPlacement, childID, "cannot remove the last parent")
		}

		now := m.clock()
		edge.Deleted = true
		edge.ModifiedAt = now
		if err := tx.PutEdge(ctx, edge); err != nil {
			return err
		}

		changes = []change{{node: child, kind: audit.ChangeUnlink, edges: []*tree.Edge{edge}, event: notify.EventUnshared}}
		if !edge.Primary() {
			return nil
		}

		detached, err := acl.Detach(ctx, tx, child, now)
		if err != nil {
			return err
		}
		// The child's own Unlink revision already carries its new state.
		for i, d := range detached {
			if i > 0 {
				changes = append(changes, change{node: d, kind: audit.ChangeACL})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.record(ctx, user, newOperationID(), changes)
	return nil
}

// Move re-parents childID from fromID to toID atomically: the old edge is
// removed and the new one added in the same transaction, so a move that
// would close a cycle changes nothing. The new edge keeps the old edge's
// propagation mode.
//
// Returns:
//   - bool: false when fromID equals toID (nothing to do)
//   - error: ErrCycleDetected, ErrPermissionDenied, ErrInvalidPlacement,
//     ErrNotFound
func (m *Mutator) Move(ctx context.Context, user tree.User, childID, fromID, toID tree.NodeID) (bool, error) {
	logger.Debug("Move: child=%s from=%s to=%s user=%s", childID, fromID, toID, user.ID)

	if fromID == toID {
		return false, nil
	}

	var result *placed
	var removed *tree.Edge

	err := m.store.Update(ctx, func(tx tree.Tx) error {
		edge, from, child, err := m.liveEdge(ctx, tx, fromID, childID)
		if err != nil {
			return err
		}
		if !acl.CanUnshare(ctx, m.checker, user, edge, from, child) {
			return tree.NewPermissionDeniedError(user.ID, "move out of", fromID)
		}

		edge.Deleted = true
		edge.ModifiedAt = m.clock()
		if err := tx.PutEdge(ctx, edge); err != nil {
			return err
		}
		removed = edge

		result, err = m.place(ctx, tx, user, Placement{
			ParentID: toID,
			Child:    child,
			Mode:     edge.Mode,
			Owner:    edge.Owner,
		})
		return err
	})
	if err != nil {
		return false, err
	}

	changes := []change{{
		node:  result.child,
		kind:  audit.ChangeMove,
		edges: []*tree.Edge{removed, result.edge},
		event: notify.EventMoved,
	}}
	for _, d := range result.descendants {
		changes = append(changes, change{node: d, kind: audit.ChangeACL})
	}
	m.record(ctx, user, newOperationID(), changes)
	return true, nil
}

// liveEdge loads a live edge and both its endpoints.
func (m *Mutator) liveEdge(ctx context.Context, tx tree.Tx, parentID, childID tree.NodeID) (*tree.Edge, *tree.Node, *tree.Node, error) {
	edge, err := tx.GetEdge(ctx, parentID, childID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !edge.Live() {
		return nil, nil, nil, tree.NewError(tree.ErrNotFound, childID, "not linked under %s", parentID)
	}

	parent, err := tx.GetNode(ctx, parentID)
	if err != nil {
		return nil, nil, nil, err
	}
	child, err := tx.GetNode(ctx, childID)
	if err != nil {
		return nil, nil, nil, err
	}
	return edge, parent, child, nil
}
