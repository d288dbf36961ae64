package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/dittotree/pkg/tree"
)

// Key Namespace
// =============
//
// Data Type          Prefix   Key Format                      Value Type
// =======================================================================
// Revision           "v:"     v:<nodeUUID>:<number %020d>     Revision (JSON)
// Head               "h:"     h:<nodeUUID>                    latest number (uint64 BE)
// Global order       "i:"     i:<ULID>                        revision key (bytes)
// Deleted by owner   "d:"     d:<owner>:<nodeUUID>            revision key (bytes)
//
// Zero-padded revision numbers keep a node's history in numeric order under
// a prefix scan. ULIDs sort lexically by time, which gives Since its order.

const (
	prefixRevision = "v:"
	prefixHead     = "h:"
	prefixOrder    = "i:"
	prefixDeleted  = "d:"
)

func keyRevision(id tree.NodeID, number uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixRevision, id, number))
}

func keyRevisionPrefix(id tree.NodeID) []byte {
	return []byte(prefixRevision + id.String() + ":")
}

func keyHead(id tree.NodeID) []byte {
	return []byte(prefixHead + id.String())
}

func keyOrder(revisionID string) []byte {
	return []byte(prefixOrder + revisionID)
}

func keyDeleted(owner tree.UserID, id tree.NodeID) []byte {
	return []byte(prefixDeleted + string(owner) + ":" + id.String())
}

func keyDeletedPrefix(owner tree.UserID) []byte {
	return []byte(prefixDeleted + string(owner) + ":")
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("invalid uint64 data: expected 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
