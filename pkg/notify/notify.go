// Package notify delivers fire-and-forget change notifications to users.
//
// A Broadcaster fans every event out to its channels from a background
// worker. A channel that fails, panics, or is rate limited only loses its
// own delivery; other channels and other recipients are unaffected, and the
// caller that raised the event never sees the failure.
package notify

import (
	"context"
	"time"

	"github.com/marmos91/dittotree/pkg/tree"
)

// EventKind names what happened to a node.
type EventKind string

const (
	EventDeleted  EventKind = "deleted"
	EventUnshared EventKind = "unshared"
	EventRestored EventKind = "restored"
	EventShared   EventKind = "shared"
	EventMoved    EventKind = "moved"
)

// Event is one notification for one recipient.
type Event struct {
	Recipient tree.UserID
	NodeID    tree.NodeID
	NodeName  string
	Kind      EventKind
	Actor     tree.UserID
	Timestamp time.Time
}

// Notifier is the notification collaborator used by the engine.
// Notify never blocks on delivery and never reports delivery errors.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Channel delivers events over one medium (mail, webhook, log, ...).
type Channel interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// OrNop returns n, or Nop when n is nil.
func OrNop(n Notifier) Notifier {
	if n == nil {
		return Nop{}
	}
	return n
}

// OwnerEvent builds the event sent to node's owner when actor changed it.
// The second return is false when the actor is the owner (nothing to send).
func OwnerEvent(node *tree.Node, kind EventKind, actor tree.UserID) (Event, bool) {
	if node == nil || node.Owner == "" || node.Owner == actor {
		return Event{}, false
	}
	return Event{
		Recipient: node.Owner,
		NodeID:    node.ID,
		NodeName:  node.Name,
		Kind:      kind,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
	}, true
}
