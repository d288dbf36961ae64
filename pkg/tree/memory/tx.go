package memory

import (
	"context"

	"github.com/marmos91/dittotree/pkg/tree"
)

// memoryTx is the tree.Tx handed to Update callbacks. It reads and writes
// the store maps directly (the store's write lock is held) and keeps an undo
// log so a failed transaction leaves no trace.
type memoryTx struct {
	store *MemoryTreeStore
	undo  []func()
}

func (tx *memoryTx) GetNode(ctx context.Context, id tree.NodeID) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tx.store.getNode(id)
}

func (tx *memoryTx) NodeExists(ctx context.Context, id tree.NodeID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := tx.store.nodes[id]
	return ok, nil
}

func (tx *memoryTx) GetEdge(ctx context.Context, parent, child tree.NodeID) (*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tx.store.getEdge(parent, child)
}

func (tx *memoryTx) ParentEdges(ctx context.Context, child tree.NodeID) ([]*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tx.store.parentEdges(child), nil
}

func (tx *memoryTx) ChildEdges(ctx context.Context, parent tree.NodeID) ([]*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tx.store.childEdges(parent), nil
}

func (tx *memoryTx) NodesByOwner(ctx context.Context, owner tree.UserID) ([]*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tx.store.nodesByOwner(owner), nil
}

func (tx *memoryTx) PutNode(ctx context.Context, node *tree.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if node == nil || node.ID == tree.NilID {
		return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "node must have an id"}
	}

	s := tx.store
	previous, exists := s.nodes[node.ID]

	switch {
	case node.Version == 0 && exists:
		return tree.NewError(tree.ErrAlreadyExists, node.ID, "node already exists")
	case node.Version != 0 && !exists:
		return tree.NewNotFoundError(node.ID)
	case exists && previous.Version != node.Version:
		return tree.NewStaleStateError(node.ID, node.Version, previous.Version)
	}

	node.Version++
	stored := node.Clone()
	s.nodes[node.ID] = stored

	if exists && previous.Owner != stored.Owner {
		removeIndex(s.owners, previous.Owner, node.ID)
	}
	addIndex(s.owners, stored.Owner, node.ID)

	id := node.ID
	tx.undo = append(tx.undo, func() {
		removeIndex(s.owners, stored.Owner, id)
		if exists {
			s.nodes[id] = previous
			addIndex(s.owners, previous.Owner, id)
		} else {
			delete(s.nodes, id)
		}
	})
	return nil
}

func (tx *memoryTx) PutEdge(ctx context.Context, edge *tree.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if edge == nil {
		return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "edge is nil"}
	}

	s := tx.store
	if _, ok := s.nodes[edge.Parent]; !ok {
		return tree.NewNotFoundError(edge.Parent)
	}
	if _, ok := s.nodes[edge.Child]; !ok {
		return tree.NewNotFoundError(edge.Child)
	}

	key := edgeKey{edge.Parent, edge.Child}
	previous, exists := s.edges[key]

	s.edges[key] = edge.Clone()
	addIndex(s.parents, edge.Child, edge.Parent)
	addIndex(s.children, edge.Parent, edge.Child)

	tx.undo = append(tx.undo, func() {
		if exists {
			s.edges[key] = previous
			return
		}
		delete(s.edges, key)
		removeIndex(s.parents, key.child, key.parent)
		removeIndex(s.children, key.parent, key.child)
	})
	return nil
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}
