package badger

import (
	"github.com/marmos91/dittotree/pkg/tree"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the tree into
// logical namespaces. Edges are stored once, under the parent, so child
// listings are a single prefix scan; a key-only reverse index serves
// parent lookups.
//
// Data Type        Prefix   Key Format                     Value Type
// =====================================================================
// Node             "n:"     n:<uuid>                       Node (JSON)
// Edge             "e:"     e:<parentUUID>:<childUUID>     Edge (JSON)
// Parent Index     "r:"     r:<childUUID>:<parentUUID>     (empty)
// Owner Index      "o:"     o:<owner>:<uuid>               (empty)
//
// UUIDs are always 36 characters, which is how index keys are split without
// escaping owner names.

const (
	prefixNode   = "n:"
	prefixEdge   = "e:"
	prefixParent = "r:"
	prefixOwner  = "o:"

	uuidLen = 36
)

func keyNode(id tree.NodeID) []byte {
	return []byte(prefixNode + id.String())
}

func keyEdge(parent, child tree.NodeID) []byte {
	return []byte(prefixEdge + parent.String() + ":" + child.String())
}

func keyChildEdgePrefix(parent tree.NodeID) []byte {
	return []byte(prefixEdge + parent.String() + ":")
}

func keyParentIndex(child, parent tree.NodeID) []byte {
	return []byte(prefixParent + child.String() + ":" + parent.String())
}

func keyParentIndexPrefix(child tree.NodeID) []byte {
	return []byte(prefixParent + child.String() + ":")
}

func keyOwner(owner tree.UserID, id tree.NodeID) []byte {
	return []byte(prefixOwner + string(owner) + ":" + id.String())
}

func keyOwnerPrefix(owner tree.UserID) []byte {
	return []byte(prefixOwner + string(owner) + ":")
}

// trailingID parses the UUID that ends an index key whose prefix is known.
// It reports false when the key belongs to a longer, colliding prefix.
func trailingID(key, prefix []byte) (tree.NodeID, bool) {
	if len(key) != len(prefix)+uuidLen {
		return tree.NilID, false
	}
	id, err := tree.ParseID(string(key[len(prefix):]))
	if err != nil {
		return tree.NilID, false
	}
	return id, true
}
