// Package acl implements the access-control propagation policy and the
// default permission check for the content tree.
package acl

import (
	"github.com/marmos91/dittotree/pkg/tree"
)

// Derive maps a parent's effective ACL and a child's own ACL through an
// edge's propagation mode to the child's effective ACL under that edge.
//
//   - ModeDefault: intersection of parent and child (the more restrictive)
//   - ModeSuppressed: the child's own ACL, parent ignored
//   - ModeSharedReadOnly: intersection with every write and share bit cleared
//   - ModeSharedReadWrite: intersection, like ModeDefault but only under the share
//
// Unknown modes yield no permissions.
func Derive(parent, child tree.ACL, mode tree.PropagationMode) tree.ACL {
	parent &= tree.ACLMask
	child &= tree.ACLMask

	switch mode {
	case tree.ModeDefault, tree.ModeSharedReadWrite:
		return parent & child
	case tree.ModeSuppressed:
		return child
	case tree.ModeSharedReadOnly:
		return (parent & child) &^ (tree.ACLWriteBits | tree.ACLShareBits)
	default:
		return 0
	}
}

// Propagates reports whether a change of the parent's effective ACL can
// change the child's effective ACL through an edge of this mode.
func Propagates(mode tree.PropagationMode) bool {
	return mode != tree.ModeSuppressed
}

// Apply recomputes edge.EffectiveACL and, for primary edges, the child's
// EffectiveACL. It reports whether anything changed.
func Apply(parent *tree.Node, edge *tree.Edge, child *tree.Node) bool {
	derived := Derive(parent.EffectiveACL, child.ACL, edge.Mode)
	changed := edge.EffectiveACL != derived
	edge.EffectiveACL = derived

	if edge.Primary() && child.EffectiveACL != derived {
		child.EffectiveACL = derived
		changed = true
	}
	return changed
}
