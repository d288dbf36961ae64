package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FixedTime is the timestamp used by test fixtures. It survives JSON
// round-trips unchanged, so backends can be compared with require.Equal.
var FixedTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewNode builds an unsaved node with sensible defaults.
func NewNode(kind tree.Kind, name string, owner tree.UserID) *tree.Node {
	return &tree.Node{
		ID:           tree.NewID(),
		Kind:         kind,
		Name:         name,
		Owner:        owner,
		ACL:          tree.ACLDefault,
		EffectiveACL: tree.ACLDefault,
		CreatedAt:    FixedTime,
		ModifiedAt:   FixedTime,
	}
}

// NewEdge builds a live edge.
func NewEdge(parent, child tree.NodeID, owner tree.UserID, mode tree.PropagationMode) *tree.Edge {
	return &tree.Edge{
		Parent:       parent,
		Child:        child,
		Owner:        owner,
		Mode:         mode,
		EffectiveACL: tree.ACLDefault,
		CreatedAt:    FixedTime,
		ModifiedAt:   FixedTime,
	}
}

// PutNodes stores nodes in a single transaction.
func PutNodes(test *testing.T, store tree.Store, nodes ...*tree.Node) {
	test.Helper()
	err := store.Update(context.Background(), func(tx tree.Tx) error {
		for _, n := range nodes {
			if err := tx.PutNode(context.Background(), n); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(test, err)
}

// PutEdges stores edges in a single transaction.
func PutEdges(test *testing.T, store tree.Store, edges ...*tree.Edge) {
	test.Helper()
	err := store.Update(context.Background(), func(tx tree.Tx) error {
		for _, e := range edges {
			if err := tx.PutEdge(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(test, err)
}

// AssertErrorCode checks that err is a StoreError with the expected code.
func AssertErrorCode(t *testing.T, expected tree.ErrorCode, err error, msgAndArgs ...any) {
	t.Helper()

	if !assert.Error(t, err, msgAndArgs...) {
		return
	}

	code, ok := tree.CodeOf(err)
	if !assert.True(t, ok, "expected *tree.StoreError, got %T: %v", err, err) {
		return
	}
	assert.Equal(t, expected, code, msgAndArgs...)
}
