package tree

import (
	"fmt"
	"sort"
	"time"
)

// PropagationMode controls how a parent's ACL reaches a child through an
// edge, and whether the edge is a primary placement or a share.
type PropagationMode int

const (
	// ModeDefault is a primary edge; the child's effective ACL is the
	// intersection of the parent's effective ACL and the child's own ACL
	ModeDefault PropagationMode = iota

	// ModeSuppressed is a primary edge; the child keeps its own ACL
	ModeSuppressed

	// ModeSharedReadOnly is a share edge; the child is read-only when
	// reached through this edge
	ModeSharedReadOnly

	// ModeSharedReadWrite is a share edge; the child is restricted by the
	// parent only when reached through this edge
	ModeSharedReadWrite
)

// IsShare reports whether edges with this mode are share edges (additional
// parents) rather than primary placements.
func (m PropagationMode) IsShare() bool {
	return m == ModeSharedReadOnly || m == ModeSharedReadWrite
}

// Valid reports whether m is a known mode.
func (m PropagationMode) Valid() bool {
	return m >= ModeDefault && m <= ModeSharedReadWrite
}

func (m PropagationMode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeSuppressed:
		return "suppressed"
	case ModeSharedReadOnly:
		return "shared-ro"
	case ModeSharedReadWrite:
		return "shared-rw"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses the String form of a PropagationMode.
func ParseMode(s string) (PropagationMode, error) {
	for m := ModeDefault; m <= ModeSharedReadWrite; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, &StoreError{Code: ErrInvalidArgument, Message: "unknown propagation mode", ID: s}
}

// Edge is a directed parent to child relationship.
//
// A store holds at most one edge record per (Parent, Child) pair. Removing
// an edge sets Deleted; re-adding the same (Parent, Child, Mode) revives it.
type Edge struct {
	Parent NodeID          `json:"parent"`
	Child  NodeID          `json:"child"`
	Owner  UserID          `json:"owner"`
	Mode   PropagationMode `json:"mode"`

	// EffectiveACL is the child's ACL as seen through this edge.
	EffectiveACL ACL `json:"effective_acl"`

	Deleted    bool      `json:"deleted,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Live reports whether the edge is not soft-deleted.
func (e *Edge) Live() bool {
	return !e.Deleted
}

// Primary reports whether the edge is a primary placement.
func (e *Edge) Primary() bool {
	return !e.Mode.IsShare()
}

// Clone returns a copy of the edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s->%s(%s)", e.Parent, e.Child, e.Mode)
}

// LiveEdges filters out soft-deleted edges.
func LiveEdges(edges []*Edge) []*Edge {
	out := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		if e.Live() {
			out = append(out, e)
		}
	}
	return out
}

// PrimaryEdge returns the live primary edge among edges, or nil.
func PrimaryEdge(edges []*Edge) *Edge {
	for _, e := range edges {
		if e.Live() && e.Primary() {
			return e
		}
	}
	return nil
}

// SortEdges orders edges by creation time, breaking ties on the child then
// parent identifier. Backends use it to give ChildEdges a stable order.
func SortEdges(edges []*Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Child != b.Child {
			return a.Child.String() < b.Child.String()
		}
		return a.Parent.String() < b.Parent.String()
	})
}
