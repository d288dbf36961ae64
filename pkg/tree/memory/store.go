// Package memory implements tree.Store with in-memory maps.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittotree/pkg/tree"
)

type edgeKey struct {
	parent tree.NodeID
	child  tree.NodeID
}

// MemoryTreeStore implements tree.Store using in-memory storage.
//
// It is suitable for tests, development, and ephemeral deployments.
//
// Thread Safety:
// All state is protected by a single read-write mutex. Update holds the
// write lock for the whole transaction, so transactions are serializable.
// A failed transaction is rolled back from an undo log.
//
// Storage Model:
//   - nodes: node identifier to node
//   - edges: (parent, child) pair to edge record, including soft-deleted edges
//   - parents/children: adjacency indexes over edges, in both directions
//   - owners: owner to the set of nodes they own
type MemoryTreeStore struct {
	mu sync.RWMutex

	nodes    map[tree.NodeID]*tree.Node
	edges    map[edgeKey]*tree.Edge
	parents  map[tree.NodeID]map[tree.NodeID]struct{}
	children map[tree.NodeID]map[tree.NodeID]struct{}
	owners   map[tree.UserID]map[tree.NodeID]struct{}

	closed bool
}

// NewMemoryTreeStore creates an empty store.
func NewMemoryTreeStore() *MemoryTreeStore {
	return &MemoryTreeStore{
		nodes:    make(map[tree.NodeID]*tree.Node),
		edges:    make(map[edgeKey]*tree.Edge),
		parents:  make(map[tree.NodeID]map[tree.NodeID]struct{}),
		children: make(map[tree.NodeID]map[tree.NodeID]struct{}),
		owners:   make(map[tree.UserID]map[tree.NodeID]struct{}),
	}
}

// ============================================================================
// Reader (locked)
// ============================================================================

func (s *MemoryTreeStore) GetNode(ctx context.Context, id tree.NodeID) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getNode(id)
}

func (s *MemoryTreeStore) NodeExists(ctx context.Context, id tree.NodeID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok, nil
}

func (s *MemoryTreeStore) GetEdge(ctx context.Context, parent, child tree.NodeID) (*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEdge(parent, child)
}

func (s *MemoryTreeStore) ParentEdges(ctx context.Context, child tree.NodeID) ([]*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parentEdges(child), nil
}

func (s *MemoryTreeStore) ChildEdges(ctx context.Context, parent tree.NodeID) ([]*tree.Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childEdges(parent), nil
}

func (s *MemoryTreeStore) NodesByOwner(ctx context.Context, owner tree.UserID) ([]*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesByOwner(owner), nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Update runs fn under the write lock. Writes are applied immediately and
// undone in reverse order if fn returns an error.
func (s *MemoryTreeStore) Update(ctx context.Context, fn func(tx tree.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &tree.StoreError{Code: tree.ErrIOError, Message: "store is closed"}
	}

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}

	// Re-check after the transaction body in case the caller was cancelled
	// while we held the lock.
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// Healthcheck reports whether the store is usable.
func (s *MemoryTreeStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &tree.StoreError{Code: tree.ErrIOError, Message: "store is closed"}
	}
	return nil
}

// Close marks the store closed. Reads keep working; updates fail.
func (s *MemoryTreeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ============================================================================
// Unlocked helpers (caller holds mu)
// ============================================================================

func (s *MemoryTreeStore) getNode(id tree.NodeID) (*tree.Node, error) {
	node, ok := s.nodes[id]
	if !ok {
		return nil, tree.NewNotFoundError(id)
	}
	return node.Clone(), nil
}

func (s *MemoryTreeStore) getEdge(parent, child tree.NodeID) (*tree.Edge, error) {
	edge, ok := s.edges[edgeKey{parent, child}]
	if !ok {
		return nil, tree.NewError(tree.ErrNotFound, child, "edge not found from %s", parent)
	}
	return edge.Clone(), nil
}

func (s *MemoryTreeStore) parentEdges(child tree.NodeID) []*tree.Edge {
	out := make([]*tree.Edge, 0, len(s.parents[child]))
	for parent := range s.parents[child] {
		out = append(out, s.edges[edgeKey{parent, child}].Clone())
	}
	tree.SortEdges(out)
	return out
}

func (s *MemoryTreeStore) childEdges(parent tree.NodeID) []*tree.Edge {
	out := make([]*tree.Edge, 0, len(s.children[parent]))
	for child := range s.children[parent] {
		out = append(out, s.edges[edgeKey{parent, child}].Clone())
	}
	tree.SortEdges(out)
	return out
}

func (s *MemoryTreeStore) nodesByOwner(owner tree.UserID) []*tree.Node {
	out := make([]*tree.Node, 0, len(s.owners[owner]))
	for id := range s.owners[owner] {
		out = append(out, s.nodes[id].Clone())
	}
	return out
}

func addIndex[K comparable](index map[K]map[tree.NodeID]struct{}, key K, id tree.NodeID) {
	set, ok := index[key]
	if !ok {
		set = make(map[tree.NodeID]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex[K comparable](index map[K]map[tree.NodeID]struct{}, key K, id tree.NodeID) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}
