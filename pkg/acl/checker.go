package acl

import (
	"context"

	"github.com/marmos91/dittotree/pkg/tree"
)

// Checker is the permission check collaborator. Implementations may
// delegate to an external authorization service.
type Checker interface {
	CanRead(ctx context.Context, user tree.User, node *tree.Node) bool
	CanWrite(ctx context.Context, user tree.User, node *tree.Node) bool
	CanShare(ctx context.Context, user tree.User, node *tree.Node) bool
}

// ModeChecker evaluates a node's EffectiveACL the way Unix evaluates mode
// bits: privileged users bypass the check, the owner uses the owner class,
// members of the node's group use the group class, everyone else the world
// class.
type ModeChecker struct{}

// NewModeChecker returns the default Checker.
func NewModeChecker() *ModeChecker {
	return &ModeChecker{}
}

func (ModeChecker) CanRead(_ context.Context, user tree.User, node *tree.Node) bool {
	return allowed(user, node, tree.PermRead)
}

func (ModeChecker) CanWrite(_ context.Context, user tree.User, node *tree.Node) bool {
	return allowed(user, node, tree.PermWrite)
}

func (ModeChecker) CanShare(_ context.Context, user tree.User, node *tree.Node) bool {
	return allowed(user, node, tree.PermShare)
}

func allowed(user tree.User, node *tree.Node, perm tree.ACL) bool {
	if node == nil {
		return false
	}
	if user.Privileged() {
		return true
	}

	mask := node.EffectiveACL
	switch {
	case user.ID != "" && user.ID == node.Owner:
		return mask.Has(tree.ShiftOwner, perm)
	case user.InGroup(node.Group):
		return mask.Has(tree.ShiftGroup, perm)
	default:
		return mask.Has(tree.ShiftWorld, perm)
	}
}

// CanUnshare reports whether user may remove edge. Edge owners and
// privileged users always may; otherwise the user needs write on the parent
// or share on the child.
func CanUnshare(ctx context.Context, checker Checker, user tree.User, edge *tree.Edge, parent, child *tree.Node) bool {
	if user.Privileged() || edge.Owner == user.ID {
		return true
	}
	return checker.CanWrite(ctx, user, parent) || checker.CanShare(ctx, user, child)
}
