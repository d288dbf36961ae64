// Package restore brings content back from the audit log: it replays a
// subtree as of an earlier revision, restores soft-deleted nodes together
// with the ancestors and descendants removed alongside them, and lists the
// deleted items of an owner.
package restore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
)

// Config holds the collaborators of a Restorer.
type Config struct {
	Store tree.Store

	// Log is both the restore source and the sink for Restore revisions.
	Log audit.Log

	// Checker is the permission check. Default: acl.ModeChecker
	Checker acl.Checker

	// Notifier tells owners their nodes were restored by someone else. Optional.
	Notifier notify.Notifier

	// Clock returns the current time. Default: time.Now in UTC
	Clock func() time.Time
}

// Restorer implements the restore side of the audit log.
type Restorer struct {
	store    tree.Store
	log      audit.Log
	checker  acl.Checker
	notifier notify.Notifier
	clock    func() time.Time
}

// New creates a Restorer.
func New(config Config) *Restorer {
	if config.Checker == nil {
		config.Checker = acl.NewModeChecker()
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Restorer{
		store:    config.Store,
		log:      config.Log,
		checker:  config.Checker,
		notifier: notify.OrNop(config.Notifier),
		clock:    config.Clock,
	}
}

// RestoreResult is the set of nodes a FullRestore brought back.
type RestoreResult struct {
	// TopLevel is the highest restored node: the requested node, or the
	// topmost ancestor that had to be restored with it.
	TopLevel *tree.Node

	// Restored holds every node that went from deleted to live, ancestors
	// first.
	Restored []*tree.Node

	// Relinked holds live nodes whose edges, removed by the same deletion,
	// were re-created.
	Relinked []*tree.Node
}

// DeletedItem is one entry of an owner's trash.
type DeletedItem struct {
	Node     *tree.Node
	Revision *audit.Revision
}

// ListDeleted returns the still-deleted nodes of owner, oldest deletion
// first. Users may list their own trash; privileged users any trash.
func (r *Restorer) ListDeleted(ctx context.Context, user tree.User, owner tree.UserID) ([]DeletedItem, error) {
	if !user.Privileged() && user.ID != owner {
		return nil, &tree.StoreError{Code: tree.ErrPermissionDenied, Message: "cannot list another user's deleted items", ID: string(owner)}
	}

	revisions, err := r.log.DeletedByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	items := make([]DeletedItem, 0, len(revisions))
	for _, rev := range revisions {
		node, err := r.store.GetNode(ctx, rev.NodeID)
		if tree.IsCode(err, tree.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !node.Deleted {
			continue
		}
		items = append(items, DeletedItem{Node: node, Revision: rev})
	}
	return items, nil
}

// latestOfKind returns the newest revision of id with the given kind, or
// nil if there is none.
func (r *Restorer) latestOfKind(ctx context.Context, id tree.NodeID, kind audit.ChangeKind) (*audit.Revision, error) {
	history, err := r.log.History(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == kind {
			return history[i], nil
		}
	}
	return nil, nil
}

func (r *Restorer) canRestore(user tree.User, node *tree.Node) bool {
	return user.Privileged() || node.Owner == user.ID
}

func (r *Restorer) record(ctx context.Context, user tree.User, opID string, nodes []*tree.Node, edges map[tree.NodeID][]*tree.Edge) {
	entries := make([]audit.Entry, 0, len(nodes))
	for _, n := range nodes {
		entries = append(entries, audit.Entry{
			NodeID:      n.ID,
			Kind:        audit.ChangeRestore,
			Snapshot:    audit.NewSnapshot(n, edges[n.ID]...),
			Actor:       user.ID,
			OperationID: opID,
		})
		if ev, ok := notify.OwnerEvent(n, notify.EventRestored, user.ID); ok {
			r.notifier.Notify(ctx, ev)
		}
	}
	audit.Record(ctx, r.log, entries...)
}

func newOperationID() string {
	return uuid.NewString()
}
