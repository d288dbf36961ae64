package mutator

import (
	"context"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
)

// SetACL changes a node's own ACL and re-derives effective ACLs of the node
// and its primary descendants. Only the owner or a privileged user may
// change a node's ACL.
func (m *Mutator) SetACL(ctx context.Context, user tree.User, id tree.NodeID, mask tree.ACL) (*tree.Node, error) {
	if mask&^tree.ACLMask != 0 {
		return nil, &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "acl has bits outside the permission mask", ID: mask.String()}
	}

	logger.Debug("SetACL: node=%s acl=%s user=%s", id, mask, user.ID)

	var node *tree.Node
	var descendants []*tree.Node

	err := m.store.Update(ctx, func(tx tree.Tx) error {
		var err error
		if node, err = tx.GetNode(ctx, id); err != nil {
			return err
		}
		if node.Deleted {
			return tree.NewError(tree.ErrInvalidPlacement, id, "node is deleted")
		}
		if !user.Privileged() && node.Owner != user.ID {
			return tree.NewPermissionDeniedError(user.ID, "change acl of", id)
		}

		now := m.clock()
		node.ACL = mask
		node.ModifiedAt = now
		if err := acl.Refresh(ctx, tx, node, now); err != nil {
			return err
		}
		if err := tx.PutNode(ctx, node); err != nil {
			return err
		}

		descendants, err = acl.Repropagate(ctx, tx, node, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(descendants) > 0 {
		logger.Debug("SetACL: node=%s updated %d descendants", id, len(descendants))
	}

	changes := []change{{node: node, kind: audit.ChangeACL}}
	for _, d := range descendants {
		changes = append(changes, change{node: d, kind: audit.ChangeACL})
	}
	m.record(ctx, user, newOperationID(), changes)
	return node, nil
}
