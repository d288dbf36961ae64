// Package audit defines the append-only revision history of the content
// tree and the Log interface its backends implement.
//
// Every committed structural mutation appends one Revision per affected
// node. Revisions are never mutated or removed by normal operations; the
// restore package replays them to bring nodes back.
package audit

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/oklog/ulid/v2"
)

// ChangeKind tags what a revision records.
type ChangeKind string

const (
	ChangeCreate  ChangeKind = "create"
	ChangeUpdate  ChangeKind = "update"
	ChangeLink    ChangeKind = "link"
	ChangeUnlink  ChangeKind = "unlink"
	ChangeMove    ChangeKind = "move"
	ChangeACL     ChangeKind = "acl"
	ChangeDelete  ChangeKind = "delete"
	ChangeUnshare ChangeKind = "unshare"
	ChangeRestore ChangeKind = "restore"
)

// Snapshot is the state captured by a revision: the node after the change
// and the edges the change touched (created, revived, or removed).
type Snapshot struct {
	Node  tree.Node   `json:"node"`
	Edges []tree.Edge `json:"edges,omitempty"`
}

// Revision is one audit entry.
type Revision struct {
	// ID is a ULID, unique across the log and ordered by append time.
	ID string `json:"id"`

	NodeID tree.NodeID `json:"node_id"`

	// Number is 1 for the first revision of a node and increases by one
	// with every append for that node.
	Number uint64 `json:"number"`

	Kind      ChangeKind  `json:"kind"`
	Snapshot  Snapshot    `json:"snapshot"`
	Timestamp time.Time   `json:"timestamp"`
	Actor     tree.UserID `json:"actor"`

	// OperationID groups revisions written by one request (for example
	// every node of one deletion plan).
	OperationID string `json:"operation_id,omitempty"`
}

// Entry is what callers hand to Log.Append. The log assigns ID, Number and,
// when zero, Timestamp.
type Entry struct {
	NodeID      tree.NodeID
	Kind        ChangeKind
	Snapshot    Snapshot
	Actor       tree.UserID
	OperationID string
	Timestamp   time.Time
}

// NewSnapshot copies node and edges into a Snapshot.
func NewSnapshot(node *tree.Node, edges ...*tree.Edge) Snapshot {
	snap := Snapshot{Node: *node}
	for _, e := range edges {
		if e != nil {
			snap.Edges = append(snap.Edges, *e)
		}
	}
	return snap
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRevisionID returns a ULID for time t. IDs generated within the same
// millisecond are strictly increasing.
func NewRevisionID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Build turns an entry into a revision with the given number.
func Build(entry Entry, number uint64) *Revision {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Revision{
		ID:          NewRevisionID(ts),
		NodeID:      entry.NodeID,
		Number:      number,
		Kind:        entry.Kind,
		Snapshot:    entry.Snapshot,
		Timestamp:   ts,
		Actor:       entry.Actor,
		OperationID: entry.OperationID,
	}
}
