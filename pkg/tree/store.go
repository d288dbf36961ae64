package tree

import (
	"context"
)

// ============================================================================
// Store Interface
// ============================================================================

// Reader exposes the read side of the Node Store and Edge Model.
//
// All methods return copies: mutating a returned Node or Edge never changes
// stored state until it is written back through a Tx.
type Reader interface {
	// GetNode returns the node with the given identifier, including
	// soft-deleted nodes.
	//
	// Returns:
	//   - *Node: Copy of the stored node
	//   - error: ErrNotFound if no node has this identifier
	GetNode(ctx context.Context, id NodeID) (*Node, error)

	// NodeExists reports whether a node with the given identifier is stored
	// (soft-deleted nodes exist).
	NodeExists(ctx context.Context, id NodeID) (bool, error)

	// GetEdge returns the edge record between parent and child.
	//
	// Returns:
	//   - *Edge: Copy of the stored edge (may be soft-deleted)
	//   - error: ErrNotFound if the pair was never linked
	GetEdge(ctx context.Context, parent, child NodeID) (*Edge, error)

	// ParentEdges returns every incoming edge of child, including
	// soft-deleted ones. Use LiveEdges to filter.
	ParentEdges(ctx context.Context, child NodeID) ([]*Edge, error)

	// ChildEdges returns every outgoing edge of parent, including
	// soft-deleted ones, in SortEdges order. This is how child collections
	// are populated lazily; nodes never carry their children.
	ChildEdges(ctx context.Context, parent NodeID) ([]*Edge, error)

	// NodesByOwner returns every node owned by the user, including
	// soft-deleted nodes.
	NodesByOwner(ctx context.Context, owner UserID) ([]*Node, error)
}

// Tx is a read-write view used inside Store.Update. Writes become visible
// to other callers only when the update function returns nil.
type Tx interface {
	Reader

	// PutNode creates or updates a node with optimistic concurrency.
	//
	// The node's Version must equal the stored version (0 when creating).
	// On success the stored version and node.Version are both incremented.
	//
	// Returns:
	//   - error: ErrStaleState on version mismatch, ErrAlreadyExists when
	//     Version is 0 but the identifier is taken
	PutNode(ctx context.Context, node *Node) error

	// PutEdge creates or replaces the edge record for (Parent, Child).
	// Both endpoints must exist.
	//
	// Returns:
	//   - error: ErrNotFound if either endpoint is missing
	PutEdge(ctx context.Context, edge *Edge) error
}

// Store is the persistence boundary of the content tree.
//
// Update runs fn atomically: either every write inside fn is committed or,
// when fn (or the commit) returns an error, none is. Concurrent Update calls
// that touch the same node or edge are isolated; a losing writer observes
// ErrStaleState.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	Reader

	// Update runs fn inside a read-write transaction.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Healthcheck verifies the backend is operational.
	Healthcheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ============================================================================
// Graph helpers
// ============================================================================

// LiveParentEdges returns the live incoming edges of id.
func LiveParentEdges(ctx context.Context, r Reader, id NodeID) ([]*Edge, error) {
	edges, err := r.ParentEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	return LiveEdges(edges), nil
}

// LiveChildEdges returns the live outgoing edges of id.
func LiveChildEdges(ctx context.Context, r Reader, id NodeID) ([]*Edge, error) {
	edges, err := r.ChildEdges(ctx, id)
	if err != nil {
		return nil, err
	}
	return LiveEdges(edges), nil
}

// IsAncestor reports whether ancestor is reachable from node by walking live
// parent edges (primary and share). A node is considered its own ancestor.
//
// The walk is breadth-first with a visited set, so it terminates even on a
// corrupted graph.
func IsAncestor(ctx context.Context, r Reader, ancestor, node NodeID) (bool, error) {
	if ancestor == node {
		return true, nil
	}

	visited := map[NodeID]struct{}{node: {}}
	queue := []NodeID{node}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		current := queue[0]
		queue = queue[1:]

		parents, err := LiveParentEdges(ctx, r, current)
		if err != nil {
			return false, err
		}
		for _, e := range parents {
			if e.Parent == ancestor {
				return true, nil
			}
			if _, seen := visited[e.Parent]; seen {
				continue
			}
			visited[e.Parent] = struct{}{}
			queue = append(queue, e.Parent)
		}
	}

	return false, nil
}

// PrimaryPath returns the chain of primary ancestors of id, nearest first,
// ending at a parentless node.
func PrimaryPath(ctx context.Context, r Reader, id NodeID) ([]NodeID, error) {
	var path []NodeID
	seen := map[NodeID]struct{}{id: {}}
	current := id

	for {
		edges, err := r.ParentEdges(ctx, current)
		if err != nil {
			return nil, err
		}
		primary := PrimaryEdge(edges)
		if primary == nil {
			return path, nil
		}
		if _, loop := seen[primary.Parent]; loop {
			return nil, NewError(ErrCycleDetected, primary.Parent, "primary ancestry loops")
		}
		seen[primary.Parent] = struct{}{}
		path = append(path, primary.Parent)
		current = primary.Parent
	}
}
