// Package tree defines the content-tree data model shared by every engine
// component: nodes, edges, access-control masks, users, the error taxonomy,
// and the Store interface implemented by persistence backends.
//
// The hierarchy is a directed acyclic graph over stable node identifiers.
// Primary edges form a forest (each node has at most one live primary
// parent); share edges add further parents without breaking acyclicity.
package tree

import (
	"time"

	"github.com/google/uuid"
)

// NodeID is the stable identifier of a node. It never changes, including
// across soft-delete and restore.
type NodeID = uuid.UUID

// UserID identifies a user.
type UserID string

// GroupID identifies a group of users.
type GroupID string

// NilID is the zero NodeID.
var NilID = uuid.Nil

// NewID generates a random NodeID.
func NewID() NodeID {
	return uuid.New()
}

// ParseID parses the textual form of a NodeID.
func ParseID(s string) (NodeID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilID, &StoreError{Code: ErrInvalidArgument, Message: "invalid node id", ID: s}
	}
	return id, nil
}

// Kind is the variant tag of a node.
type Kind int

const (
	// KindFolder is a general container
	KindFolder Kind = iota + 1

	// KindNotebook is a container holding ordered leaf entries
	KindNotebook

	// KindDocument is a leaf record
	KindDocument

	// KindMediaFile is a leaf record backed by file content
	KindMediaFile
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindNotebook:
		return "notebook"
	case KindDocument:
		return "document"
	case KindMediaFile:
		return "media"
	default:
		return "unknown"
	}
}

// ParseKind parses the String form of a Kind.
func ParseKind(s string) (Kind, error) {
	for k := KindFolder; k <= KindMediaFile; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, &StoreError{Code: ErrInvalidArgument, Message: "unknown node kind", ID: s}
}

// IsContainer reports whether nodes of this kind may have children.
func (k Kind) IsContainer() bool {
	return k == KindFolder || k == KindNotebook
}

// Accepts reports whether a node of kind k may hold a child of kind child.
// Folders accept anything; notebooks accept only leaf records.
func (k Kind) Accepts(child Kind) bool {
	switch k {
	case KindFolder:
		return child >= KindFolder && child <= KindMediaFile
	case KindNotebook:
		return !child.IsContainer() && child >= KindFolder && child <= KindMediaFile
	default:
		return false
	}
}

// NodeRole marks system-managed folders.
type NodeRole int

const (
	// RoleNone is an ordinary user-created node
	RoleNone NodeRole = iota

	// RoleWorkspace is a user's root folder
	RoleWorkspace

	// RoleInbox is the well-known per-user, per-content-type inbox folder
	RoleInbox
)

// Node is a folder or record in the content hierarchy.
//
// Children are not stored on the node; they are loaded on demand through
// Store.ChildEdges.
type Node struct {
	ID    NodeID  `json:"id"`
	Kind  Kind    `json:"kind"`
	Name  string  `json:"name"`
	Owner UserID  `json:"owner"`
	Group GroupID `json:"group,omitempty"`

	// ACL is the node's own permission mask.
	ACL ACL `json:"acl"`

	// EffectiveACL is ACL as derived through the node's primary parent.
	// For parentless nodes it equals ACL.
	EffectiveACL ACL `json:"effective_acl"`

	// Signed marks witnessed content. Signed nodes cannot be deleted or
	// overwritten by a restore.
	Signed bool `json:"signed,omitempty"`

	Deleted   bool      `json:"deleted,omitempty"`
	DeletedAt time.Time `json:"deleted_at,omitempty"`
	DeletedBy UserID    `json:"deleted_by,omitempty"`

	Role        NodeRole `json:"role,omitempty"`
	ContentType string   `json:"content_type,omitempty"`

	// Version is the optimistic concurrency token. Zero means the node has
	// never been stored; every successful PutNode increments it.
	Version uint64 `json:"version"`

	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Clone returns a copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// Role is a user's system role.
type Role int

const (
	// RoleMember is an ordinary user subject to ACL checks
	RoleMember Role = iota

	// RoleAdmin bypasses ACL checks
	RoleAdmin

	// RoleSystem is used by system-managed placements and bypasses ACL checks
	RoleSystem
)

// User is the acting identity passed to every operation.
type User struct {
	ID     UserID
	Groups []GroupID
	Role   Role
}

// InGroup reports whether the user belongs to group g.
func (u User) InGroup(g GroupID) bool {
	if g == "" {
		return false
	}
	for _, member := range u.Groups {
		if member == g {
			return true
		}
	}
	return false
}

// Privileged reports whether the user bypasses ACL checks.
func (u User) Privileged() bool {
	return u.Role == RoleAdmin || u.Role == RoleSystem
}

// SystemUser is the identity used for system-managed placements.
var SystemUser = User{ID: "system", Role: RoleSystem}
