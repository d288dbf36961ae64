package audit

import (
	"context"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/tree"
)

// Log is the audit sink and restore source.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Appends for the same
// node are serialized so revision numbers never repeat.
type Log interface {
	// Append stores a new revision for entry.NodeID, numbered one past the
	// node's latest revision.
	//
	// Returns:
	//   - *Revision: The stored revision (ID, Number and Timestamp assigned)
	//   - error: Backend failure
	Append(ctx context.Context, entry Entry) (*Revision, error)

	// History returns every revision of a node ordered by Number.
	History(ctx context.Context, id tree.NodeID) ([]*Revision, error)

	// Get returns revision number of node id.
	//
	// Returns:
	//   - error: ErrNotFound if the node has no such revision
	Get(ctx context.Context, id tree.NodeID, number uint64) (*Revision, error)

	// Latest returns the newest revision of a node.
	//
	// Returns:
	//   - error: ErrNotFound if the node has no revisions
	Latest(ctx context.Context, id tree.NodeID) (*Revision, error)

	// DeletedByOwner returns, for every node owned by owner whose latest
	// revision is a ChangeDelete, that revision. Results are ordered by
	// revision ID (deletion time).
	DeletedByOwner(ctx context.Context, owner tree.UserID) ([]*Revision, error)

	// Since returns up to limit revisions with an ID greater than afterID,
	// ordered by ID. An empty afterID starts at the beginning.
	Since(ctx context.Context, afterID string, limit int) ([]*Revision, error)

	// Close releases backend resources.
	Close() error
}

// RevisionNotFound builds the error returned for a missing revision.
func RevisionNotFound(id tree.NodeID, number uint64) error {
	if number == 0 {
		return tree.NewError(tree.ErrNotFound, id, "no revisions")
	}
	return tree.NewError(tree.ErrNotFound, id, "revision %d not found", number)
}

// Record appends entries in order after the mutation they describe has
// committed. Failures are logged and skipped: the tree change already
// happened and cannot be rolled back. A nil log records nothing.
func Record(ctx context.Context, log Log, entries ...Entry) []*Revision {
	if log == nil {
		return nil
	}

	revisions := make([]*Revision, 0, len(entries))
	for _, entry := range entries {
		rev, err := log.Append(ctx, entry)
		if err != nil {
			logger.Error("Audit: failed to append %s revision for %s: %v", entry.Kind, entry.NodeID, err)
			continue
		}
		revisions = append(revisions, rev)
	}
	return revisions
}
