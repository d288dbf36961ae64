package restore

import (
	"context"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
)

type replay struct {
	node     *tree.Node
	snapshot tree.Node
}

// RestoreSubtreeAsCurrent makes revision asOf of rootID the current state
// of rootID, and the state each primary descendant had at that moment the
// current state of that descendant. Descendants created after the revision
// are left as they are. Structure is not changed: only node attributes
// (name, ACL, group, content type) are replayed, then effective ACLs are
// re-derived over the subtree.
//
// Returns:
//   - *tree.Node: The root after the restore
//   - error: ErrSignedRecordConflict if any node that would be overwritten
//     is signed (nothing is written), ErrNotFound for an unknown revision,
//     ErrPermissionDenied, ErrInvalidArgument when the root is deleted
func (r *Restorer) RestoreSubtreeAsCurrent(ctx context.Context, user tree.User, rootID tree.NodeID, asOf uint64) (*tree.Node, error) {
	logger.Debug("RestoreSubtreeAsCurrent: root=%s revision=%d user=%s", rootID, asOf, user.ID)

	target, err := r.log.Get(ctx, rootID, asOf)
	if err != nil {
		return nil, err
	}

	var replays []replay
	err = r.store.Update(ctx, func(tx tree.Tx) error {
		replays = nil

		root, err := tx.GetNode(ctx, rootID)
		if err != nil {
			return err
		}
		if root.Deleted {
			return tree.NewError(tree.ErrInvalidArgument, rootID, "node is deleted, use a full restore")
		}
		if !r.canRestore(user, root) && !r.checker.CanWrite(ctx, user, root) {
			return tree.NewPermissionDeniedError(user.ID, "restore", rootID)
		}

		replays, err = r.collectReplays(ctx, tx, root, target)
		if err != nil {
			return err
		}
		for _, rp := range replays {
			if rp.node.Signed {
				return tree.NewError(tree.ErrSignedRecordConflict, rp.node.ID, "%q is signed", rp.node.Name)
			}
		}

		now := r.clock()
		for _, rp := range replays {
			n := rp.node
			n.Name = rp.snapshot.Name
			n.ACL = rp.snapshot.ACL
			n.Group = rp.snapshot.Group
			n.ContentType = rp.snapshot.ContentType
			n.ModifiedAt = now

			if err := acl.Refresh(ctx, tx, n, now); err != nil {
				return err
			}
			if err := tx.PutNode(ctx, n); err != nil {
				return err
			}
		}

		_, err = acl.Repropagate(ctx, tx, replays[0].node, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	nodes := make([]*tree.Node, len(replays))
	for i, rp := range replays {
		nodes[i] = rp.node
	}
	r.record(ctx, user, newOperationID(), nodes, nil)

	logger.Info("Restored %d nodes under %s as of revision %d", len(nodes), rootID, asOf)
	return r.store.GetNode(ctx, rootID)
}

// collectReplays pairs root with target's snapshot and every live primary
// descendant with its newest revision not newer than target. The result is
// in breadth-first order, root first.
func (r *Restorer) collectReplays(ctx context.Context, tx tree.Tx, root *tree.Node, target *audit.Revision) ([]replay, error) {
	replays := []replay{{node: root, snapshot: target.Snapshot.Node}}
	queue := []tree.NodeID{root.ID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		edges, err := tree.LiveChildEdges(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !e.Primary() {
				continue
			}
			queue = append(queue, e.Child)

			rev, err := r.revisionAt(ctx, e.Child, target.ID)
			if err != nil {
				return nil, err
			}
			if rev == nil {
				continue
			}
			child, err := tx.GetNode(ctx, e.Child)
			if err != nil {
				return nil, err
			}
			replays = append(replays, replay{node: child, snapshot: rev.Snapshot.Node})
		}
	}
	return replays, nil
}

// revisionAt returns the newest revision of id whose ID does not exceed
// maxID, or nil. Revision IDs are time-ordered ULIDs.
func (r *Restorer) revisionAt(ctx context.Context, id tree.NodeID, maxID string) (*audit.Revision, error) {
	history, err := r.log.History(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ID <= maxID {
			return history[i], nil
		}
	}
	return nil, nil
}
