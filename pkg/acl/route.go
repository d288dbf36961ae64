package acl

import (
	"context"

	"github.com/marmos91/dittotree/pkg/tree"
)

// ShareRoutes returns the live share edges through which user reaches node:
// share edges whose parent is owned by user, found on node itself or on the
// nearest primary ancestor that has any. An empty result means user reaches
// node through its primary placement only.
func ShareRoutes(ctx context.Context, r tree.Reader, user tree.User, node *tree.Node) ([]*tree.Edge, error) {
	ancestors, err := tree.PrimaryPath(ctx, r, node.ID)
	if err != nil {
		return nil, err
	}

	for _, id := range append([]tree.NodeID{node.ID}, ancestors...) {
		edges, err := tree.LiveParentEdges(ctx, r, id)
		if err != nil {
			return nil, err
		}

		var routes []*tree.Edge
		for _, e := range edges {
			if !e.Mode.IsShare() {
				continue
			}
			parent, err := r.GetNode(ctx, e.Parent)
			if err != nil {
				return nil, err
			}
			if parent.Owner == user.ID && !parent.Deleted {
				routes = append(routes, e)
			}
		}
		if len(routes) > 0 {
			return routes, nil
		}
	}
	return nil, nil
}

// Permits checks perm on node like checker does, then narrows the answer by
// the share edges user reaches node through. A share lands in a folder the
// user owns, so each edge's EffectiveACL is read in the owner class; the
// permission must be granted by at least one route. Owners of node and
// privileged users are not narrowed.
func Permits(ctx context.Context, r tree.Reader, checker Checker, user tree.User, node *tree.Node, perm tree.ACL) (bool, error) {
	var ok bool
	switch perm {
	case tree.PermRead:
		ok = checker.CanRead(ctx, user, node)
	case tree.PermWrite:
		ok = checker.CanWrite(ctx, user, node)
	case tree.PermShare:
		ok = checker.CanShare(ctx, user, node)
	}
	if !ok || user.Privileged() || node.Owner == user.ID {
		return ok, nil
	}

	routes, err := ShareRoutes(ctx, r, user, node)
	if err != nil {
		return false, err
	}
	if len(routes) == 0 {
		return true, nil
	}
	for _, e := range routes {
		if e.EffectiveACL.Has(tree.ShiftOwner, perm) {
			return true, nil
		}
	}
	return false, nil
}

// CanWriteVia is Permits for tree.PermWrite.
func CanWriteVia(ctx context.Context, r tree.Reader, checker Checker, user tree.User, node *tree.Node) (bool, error) {
	return Permits(ctx, r, checker, user, node, tree.PermWrite)
}

// CanShareVia is Permits for tree.PermShare.
func CanShareVia(ctx context.Context, r tree.Reader, checker Checker, user tree.User, node *tree.Node) (bool, error) {
	return Permits(ctx, r, checker, user, node, tree.PermShare)
}
