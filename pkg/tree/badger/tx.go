package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittotree/pkg/tree"
)

// badgerTx adapts a badger.Txn to tree.Tx. Read-only transactions use the
// same type; writes on them fail inside BadgerDB.
type badgerTx struct {
	txn *badger.Txn
}

func (tx *badgerTx) GetNode(ctx context.Context, id tree.NodeID) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := tx.txn.Get(keyNode(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tree.NewNotFoundError(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	var node *tree.Node
	err = item.Value(func(val []byte) error {
		node, err = decodeNode(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func (tx *badgerTx) NodeExists(ctx context.Context, id tree.NodeID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := tx.txn.Get(keyNode(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check node: %w", err)
	}
	return true, nil
}

func (tx *badgerTx) GetEdge(ctx context.Context, parent, child tree.NodeID) (*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	item, err := tx.txn.Get(keyEdge(parent, child))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tree.NewError(tree.ErrNotFound, child, "edge not found from %s", parent)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}

	var edge *tree.Edge
	err = item.Value(func(val []byte) error {
		edge, err = decodeEdge(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func (tx *badgerTx) ParentEdges(ctx context.Context, child tree.NodeID) ([]*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := keyParentIndexPrefix(child)
	parents, err := tx.scanIDs(prefix)
	if err != nil {
		return nil, err
	}

	edges := make([]*tree.Edge, 0, len(parents))
	for _, parent := range parents {
		edge, err := tx.GetEdge(ctx, parent, child)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	tree.SortEdges(edges)
	return edges, nil
}

func (tx *badgerTx) ChildEdges(ctx context.Context, parent tree.NodeID) ([]*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = keyChildEdgePrefix(parent)
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var edges []*tree.Edge
	for it.Rewind(); it.Valid(); it.Next() {
		var edge *tree.Edge
		err := it.Item().Value(func(val []byte) error {
			var err error
			edge, err = decodeEdge(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	tree.SortEdges(edges)
	return edges, nil
}

func (tx *badgerTx) NodesByOwner(ctx context.Context, owner tree.UserID) ([]*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := tx.scanIDs(keyOwnerPrefix(owner))
	if err != nil {
		return nil, err
	}

	nodes := make([]*tree.Node, 0, len(ids))
	for _, id := range ids {
		node, err := tx.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (tx *badgerTx) PutNode(ctx context.Context, node *tree.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if node == nil || node.ID == tree.NilID {
		return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "node must have an id"}
	}

	previous, err := tx.GetNode(ctx, node.ID)
	exists := err == nil
	if err != nil && !tree.IsCode(err, tree.ErrNotFound) {
		return err
	}

	switch {
	case node.Version == 0 && exists:
		return tree.NewError(tree.ErrAlreadyExists, node.ID, "node already exists")
	case node.Version != 0 && !exists:
		return tree.NewNotFoundError(node.ID)
	case exists && previous.Version != node.Version:
		return tree.NewStaleStateError(node.ID, node.Version, previous.Version)
	}

	node.Version++
	data, err := encodeNode(node)
	if err != nil {
		node.Version--
		return err
	}
	if err := tx.txn.Set(keyNode(node.ID), data); err != nil {
		node.Version--
		return fmt.Errorf("failed to store node: %w", err)
	}

	if exists && previous.Owner != node.Owner {
		if err := tx.txn.Delete(keyOwner(previous.Owner, node.ID)); err != nil {
			return fmt.Errorf("failed to update owner index: %w", err)
		}
	}
	if err := tx.txn.Set(keyOwner(node.Owner, node.ID), nil); err != nil {
		return fmt.Errorf("failed to update owner index: %w", err)
	}
	return nil
}

func (tx *badgerTx) PutEdge(ctx context.Context, edge *tree.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if edge == nil {
		return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "edge is nil"}
	}

	for _, id := range []tree.NodeID{edge.Parent, edge.Child} {
		exists, err := tx.NodeExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return tree.NewNotFoundError(id)
		}
	}

	data, err := encodeEdge(edge)
	if err != nil {
		return err
	}
	if err := tx.txn.Set(keyEdge(edge.Parent, edge.Child), data); err != nil {
		return fmt.Errorf("failed to store edge: %w", err)
	}
	if err := tx.txn.Set(keyParentIndex(edge.Child, edge.Parent), nil); err != nil {
		return fmt.Errorf("failed to store parent index: %w", err)
	}
	return nil
}

// scanIDs collects the trailing UUIDs of every key under prefix.
func (tx *badgerTx) scanIDs(prefix []byte) ([]tree.NodeID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var ids []tree.NodeID
	for it.Rewind(); it.Valid(); it.Next() {
		id, ok := trailingID(it.Item().Key(), prefix)
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
