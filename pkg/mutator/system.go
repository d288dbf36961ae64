package mutator

import (
	"context"
	"fmt"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
)

// CreateWorkspace creates the root folder of user. A user has at most one
// live workspace.
//
// Returns:
//   - error: ErrAlreadyExists if the user already has a workspace
func (m *Mutator) CreateWorkspace(ctx context.Context, user tree.User, name string) (*tree.Node, error) {
	if name == "" {
		name = string(user.ID)
	}

	now := m.clock()
	ws := &tree.Node{
		ID:           tree.NewID(),
		Kind:         tree.KindFolder,
		Name:         name,
		Owner:        user.ID,
		ACL:          tree.ACLPrivate,
		EffectiveACL: tree.ACLPrivate,
		Role:         tree.RoleWorkspace,
		CreatedAt:    now,
		ModifiedAt:   now,
	}

	err := m.store.Update(ctx, func(tx tree.Tx) error {
		existing, err := findWorkspace(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return tree.NewError(tree.ErrAlreadyExists, existing.ID, "user %s already has a workspace", user.ID)
		}
		return tx.PutNode(ctx, ws)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Created workspace %s for %s", ws.ID, user.ID)
	m.record(ctx, user, newOperationID(), []change{{node: ws, kind: audit.ChangeCreate}})
	return ws, nil
}

// Workspace returns the live workspace of owner.
//
// Returns:
//   - error: ErrNotFound if owner has none
func (m *Mutator) Workspace(ctx context.Context, owner tree.UserID) (*tree.Node, error) {
	ws, err := findWorkspace(ctx, m.store, owner)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, &tree.StoreError{Code: tree.ErrNotFound, Message: "no workspace", ID: string(owner)}
	}
	return ws, nil
}

func findWorkspace(ctx context.Context, r tree.Reader, owner tree.UserID) (*tree.Node, error) {
	nodes, err := r.NodesByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Role == tree.RoleWorkspace && !n.Deleted {
			return n, nil
		}
	}
	return nil, nil
}

// FindOrCreateInbox returns the user's inbox folder for contentType,
// creating it under the user's workspace if it does not exist yet.
//
// Two concurrent calls for the same user and content type return the same
// folder: the lookup and the creation run under one mutex.
func (m *Mutator) FindOrCreateInbox(ctx context.Context, user tree.User, contentType string) (*tree.Node, error) {
	if contentType == "" {
		return nil, &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "content type is required"}
	}

	m.inboxMu.Lock()
	defer m.inboxMu.Unlock()

	ws, err := m.Workspace(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	edges, err := tree.LiveChildEdges(ctx, m.store, ws.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		child, err := m.store.GetNode(ctx, e.Child)
		if err != nil {
			return nil, err
		}
		if child.Role == tree.RoleInbox && child.ContentType == contentType && !child.Deleted {
			return child, nil
		}
	}

	logger.Debug("FindOrCreateInbox: creating %s inbox for %s", contentType, user.ID)
	return m.AddChild(ctx, user, Placement{
		ParentID: ws.ID,
		Child: &tree.Node{
			Kind:        tree.KindFolder,
			Name:        fmt.Sprintf("Inbox (%s)", contentType),
			Owner:       user.ID,
			ACL:         tree.ACLPrivate,
			Role:        tree.RoleInbox,
			ContentType: contentType,
		},
		Mode: tree.ModeDefault,
	})
}

// ShareWithGroup links folderID into the workspace of every member through
// a share edge of the given mode. The placements are system-managed: they
// run as tree.SystemUser with the skip-on-cycle policy, so a member whose
// workspace already sits below the folder is skipped instead of failing
// the whole share. Members without a workspace are skipped too.
//
// Outcomes are keyed by member workspace identifier; the result's parent is
// the shared folder.
func (m *Mutator) ShareWithGroup(ctx context.Context, user tree.User, folderID tree.NodeID, members []tree.UserID, mode tree.PropagationMode) (*tree.CompositeResult, error) {
	if !mode.IsShare() {
		return nil, &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "group shares need a share mode", ID: mode.String()}
	}

	folder, err := m.store.GetNode(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !m.checker.CanShare(ctx, user, folder) {
		return nil, tree.NewPermissionDeniedError(user.ID, "share", folderID)
	}

	var placements []Placement
	var workspaces []tree.NodeID
	for _, member := range members {
		ws, err := m.Workspace(ctx, member)
		if tree.IsCode(err, tree.ErrNotFound) {
			logger.Warn("ShareWithGroup: member %s has no workspace, skipping", member)
			continue
		}
		if err != nil {
			return nil, err
		}
		placements = append(placements, Placement{
			ParentID: ws.ID,
			Child:    &tree.Node{ID: folderID},
			Mode:     mode,
			Owner:    user.ID,
			OnCycle:  CycleSkip,
		})
		workspaces = append(workspaces, ws.ID)
	}

	outcomes, results, err := m.placeAll(ctx, tree.SystemUser, placements)

	result := tree.NewCompositeResult()
	result.SetParent(folder)
	for i, o := range outcomes {
		result.Record(workspaces[i], o)
	}
	if err != nil {
		return result, err
	}

	m.recordPlaced(ctx, user, results)
	return result, nil
}
