package engine

import (
	"context"

	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/deletion"
	"github.com/marmos91/dittotree/pkg/mutator"
	"github.com/marmos91/dittotree/pkg/restore"
	"github.com/marmos91/dittotree/pkg/tree"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================================
// Tree Mutator
// ============================================================================

// AddChild links p.Child under p.ParentID. See mutator.Mutator.AddChild.
func (e *Engine) AddChild(ctx context.Context, user tree.User, p mutator.Placement) (node *tree.Node, err error) {
	ctx, span, start := e.start(ctx, "AddChild", user,
		nodeAttr("parent.id", p.ParentID),
		attribute.String("edge.mode", p.Mode.String()),
	)
	defer func() { e.finish(span, "add_child", start, err) }()

	return e.mutator.AddChild(ctx, user, p)
}

// Place applies a batch of placements. See mutator.Mutator.Place.
func (e *Engine) Place(ctx context.Context, user tree.User, placements []mutator.Placement) (result *tree.CompositeResult, err error) {
	ctx, span, start := e.start(ctx, "Place", user, attribute.Int("placements", len(placements)))
	defer func() { e.finish(span, "place", start, err) }()

	result, err = e.mutator.Place(ctx, user, placements)
	e.recordOutcomes(span, "place", result)
	return result, err
}

// RemoveChild removes the edge between parentID and childID.
func (e *Engine) RemoveChild(ctx context.Context, user tree.User, parentID, childID tree.NodeID) (err error) {
	ctx, span, start := e.start(ctx, "RemoveChild", user,
		nodeAttr("parent.id", parentID),
		nodeAttr("node.id", childID),
	)
	defer func() { e.finish(span, "remove_child", start, err) }()

	return e.mutator.RemoveChild(ctx, user, parentID, childID)
}

// Move re-parents childID from fromID to toID.
func (e *Engine) Move(ctx context.Context, user tree.User, childID, fromID, toID tree.NodeID) (moved bool, err error) {
	ctx, span, start := e.start(ctx, "Move", user,
		nodeAttr("node.id", childID),
		nodeAttr("from.id", fromID),
		nodeAttr("to.id", toID),
	)
	defer func() { e.finish(span, "move", start, err) }()

	moved, err = e.mutator.Move(ctx, user, childID, fromID, toID)
	span.SetAttributes(attribute.Bool("moved", moved))
	return moved, err
}

// SetACL changes a node's own ACL and re-propagates its subtree.
func (e *Engine) SetACL(ctx context.Context, user tree.User, id tree.NodeID, mask tree.ACL) (node *tree.Node, err error) {
	ctx, span, start := e.start(ctx, "SetACL", user,
		nodeAttr("node.id", id),
		attribute.String("acl", mask.String()),
	)
	defer func() { e.finish(span, "set_acl", start, err) }()

	return e.mutator.SetACL(ctx, user, id, mask)
}

// CreateWorkspace creates the user's workspace root.
func (e *Engine) CreateWorkspace(ctx context.Context, user tree.User, name string) (node *tree.Node, err error) {
	ctx, span, start := e.start(ctx, "CreateWorkspace", user)
	defer func() { e.finish(span, "create_workspace", start, err) }()

	return e.mutator.CreateWorkspace(ctx, user, name)
}

// Workspace returns the live workspace of owner.
func (e *Engine) Workspace(ctx context.Context, owner tree.UserID) (*tree.Node, error) {
	return e.mutator.Workspace(ctx, owner)
}

// FindOrCreateInbox returns the user's inbox for contentType.
func (e *Engine) FindOrCreateInbox(ctx context.Context, user tree.User, contentType string) (node *tree.Node, err error) {
	ctx, span, start := e.start(ctx, "FindOrCreateInbox", user, attribute.String("content_type", contentType))
	defer func() { e.finish(span, "find_or_create_inbox", start, err) }()

	return e.mutator.FindOrCreateInbox(ctx, user, contentType)
}

// ShareWithGroup links each member's workspace under folderID.
func (e *Engine) ShareWithGroup(ctx context.Context, user tree.User, folderID tree.NodeID, members []tree.UserID, mode tree.PropagationMode) (result *tree.CompositeResult, err error) {
	ctx, span, start := e.start(ctx, "ShareWithGroup", user,
		nodeAttr("node.id", folderID),
		attribute.Int("members", len(members)),
		attribute.String("edge.mode", mode.String()),
	)
	defer func() { e.finish(span, "share_with_group", start, err) }()

	result, err = e.mutator.ShareWithGroup(ctx, user, folderID, members, mode)
	e.recordOutcomes(span, "share_with_group", result)
	return result, err
}

// ============================================================================
// Deletion
// ============================================================================

// CalculateDeletionOrder plans the removal of rootID from parentID.
func (e *Engine) CalculateDeletionOrder(ctx context.Context, rootID, parentID tree.NodeID, user tree.User) (plan *deletion.Plan, err error) {
	ctx, span, start := e.start(ctx, "CalculateDeletionOrder", user,
		nodeAttr("node.id", rootID),
		nodeAttr("parent.id", parentID),
	)
	defer func() { e.finish(span, "plan_deletion", start, err) }()

	plan, err = e.planner.CalculateDeletionOrder(ctx, rootID, parentID, user)
	if err != nil {
		return nil, err
	}
	e.metrics.ObservePlanSize(plan.Len())
	span.SetAttributes(attribute.Int("plan.size", plan.Len()))
	return plan, nil
}

// Execute applies a deletion plan. See deletion.Executor.Execute.
func (e *Engine) Execute(ctx context.Context, result *tree.CompositeResult, plan *deletion.Plan, progress deletion.ProgressFunc) (err error) {
	var user tree.User
	if plan != nil {
		user = plan.User
	}
	ctx, span, start := e.start(ctx, "Execute", user)
	defer func() { e.finish(span, "execute_deletion", start, err) }()

	err = e.executor.Execute(ctx, result, plan, progress)
	e.recordOutcomes(span, "execute_deletion", result)
	return err
}

// Delete plans and executes the removal of rootID from parentID.
func (e *Engine) Delete(ctx context.Context, user tree.User, rootID, parentID tree.NodeID, progress deletion.ProgressFunc) (*tree.CompositeResult, error) {
	plan, err := e.CalculateDeletionOrder(ctx, rootID, parentID, user)
	if err != nil {
		return nil, err
	}

	result := tree.NewCompositeResult()
	if err := e.Execute(ctx, result, plan, progress); err != nil {
		return result, err
	}
	return result, nil
}

// ============================================================================
// Restore
// ============================================================================

// RestoreSubtreeAsCurrent replays the subtree under rootID as of revision asOf.
func (e *Engine) RestoreSubtreeAsCurrent(ctx context.Context, user tree.User, rootID tree.NodeID, asOf uint64) (node *tree.Node, err error) {
	ctx, span, start := e.start(ctx, "RestoreSubtreeAsCurrent", user,
		nodeAttr("node.id", rootID),
		attribute.Int64("revision", int64(asOf)),
	)
	defer func() { e.finish(span, "restore_subtree", start, err) }()

	return e.restorer.RestoreSubtreeAsCurrent(ctx, user, rootID, asOf)
}

// FullRestore brings a deleted node back together with what its deletion removed.
func (e *Engine) FullRestore(ctx context.Context, user tree.User, deletedID tree.NodeID) (result *restore.RestoreResult, err error) {
	ctx, span, start := e.start(ctx, "FullRestore", user, nodeAttr("node.id", deletedID))
	defer func() { e.finish(span, "full_restore", start, err) }()

	result, err = e.restorer.FullRestore(ctx, user, deletedID)
	if result != nil {
		span.SetAttributes(
			attribute.Int("restored", len(result.Restored)),
			attribute.Int("relinked", len(result.Relinked)),
		)
		for range result.Restored {
			e.metrics.RecordOutcome("full_restore", tree.OutcomeRestored.String())
		}
		for range result.Relinked {
			e.metrics.RecordOutcome("full_restore", tree.OutcomeAdded.String())
		}
	}
	return result, err
}

// ListDeleted returns owner's deleted nodes.
func (e *Engine) ListDeleted(ctx context.Context, user tree.User, owner tree.UserID) ([]restore.DeletedItem, error) {
	return e.restorer.ListDeleted(ctx, user, owner)
}

// ============================================================================
// Queries
// ============================================================================

// Node returns a node the user can read.
func (e *Engine) Node(ctx context.Context, user tree.User, id tree.NodeID) (*tree.Node, error) {
	node, err := e.store.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.checker.CanRead(ctx, user, node) {
		return nil, tree.NewPermissionDeniedError(user.ID, "read", id)
	}
	return node, nil
}

// Children returns the live children of id that the user can read.
func (e *Engine) Children(ctx context.Context, user tree.User, id tree.NodeID) ([]*tree.Node, error) {
	if _, err := e.Node(ctx, user, id); err != nil {
		return nil, err
	}

	edges, err := tree.LiveChildEdges(ctx, e.store, id)
	if err != nil {
		return nil, err
	}

	children := make([]*tree.Node, 0, len(edges))
	for _, edge := range edges {
		child, err := e.store.GetNode(ctx, edge.Child)
		if err != nil {
			return nil, err
		}
		if child.Deleted || !e.checker.CanRead(ctx, user, child) {
			continue
		}
		children = append(children, child)
	}
	return children, nil
}

// History returns the revisions of a node the user can read.
func (e *Engine) History(ctx context.Context, user tree.User, id tree.NodeID) ([]*audit.Revision, error) {
	if _, err := e.Node(ctx, user, id); err != nil {
		return nil, err
	}
	return e.log.History(ctx, id)
}
