// Package mutator implements structural changes to the content tree: adding
// and removing edges, moving nodes, changing ACLs, and the system-managed
// placements (workspaces, inboxes, group shares).
//
// Every operation validates against the Edge Model inside one store
// transaction before writing anything, so a rejected change (cycle,
// permission, invalid placement) leaves no partial edge state. Revisions are
// appended to the audit log once the transaction has committed.
package mutator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
)

// Config holds the collaborators of a Mutator.
type Config struct {
	Store tree.Store

	// Log receives one revision per changed node. Optional.
	Log audit.Log

	// Checker is the permission check. Default: acl.ModeChecker
	Checker acl.Checker

	// Notifier receives owner notifications. Optional.
	Notifier notify.Notifier

	// Clock returns the current time. Default: time.Now in UTC
	Clock func() time.Time
}

// Mutator is the Tree Mutator.
//
// Thread Safety:
// Safe for concurrent use. Concurrent changes to the same node are
// serialized by the store; the loser fails with ErrStaleState.
type Mutator struct {
	store    tree.Store
	log      audit.Log
	checker  acl.Checker
	notifier notify.Notifier
	clock    func() time.Time

	// inboxMu guards the find-or-create critical section of
	// FindOrCreateInbox and nothing else.
	inboxMu sync.Mutex
}

// New creates a Mutator.
func New(config Config) *Mutator {
	if config.Checker == nil {
		config.Checker = acl.NewModeChecker()
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Mutator{
		store:    config.Store,
		log:      config.Log,
		checker:  config.Checker,
		notifier: notify.OrNop(config.Notifier),
		clock:    config.Clock,
	}
}

// Store returns the underlying store.
func (m *Mutator) Store() tree.Store {
	return m.store
}

func newOperationID() string {
	return uuid.NewString()
}

// record appends revisions for changes and notifies owners changed by
// someone else.
func (m *Mutator) record(ctx context.Context, user tree.User, opID string, changes []change) {
	entries := make([]audit.Entry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, audit.Entry{
			NodeID:      c.node.ID,
			Kind:        c.kind,
			Snapshot:    audit.NewSnapshot(c.node, c.edges...),
			Actor:       user.ID,
			OperationID: opID,
		})
		if c.event != "" {
			if ev, ok := notify.OwnerEvent(c.node, c.event, user.ID); ok {
				m.notifier.Notify(ctx, ev)
			}
		}
	}
	audit.Record(ctx, m.log, entries...)
}

// change is one node touched by a committed transaction.
type change struct {
	node  *tree.Node
	kind  audit.ChangeKind
	edges []*tree.Edge
	event notify.EventKind
}
