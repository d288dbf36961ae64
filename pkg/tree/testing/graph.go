package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunGraphTests(test *testing.T) {
	test.Run("IsAncestor_ThroughShare", suite.TestIsAncestor_ThroughShare)
	test.Run("IsAncestor_IgnoresDeletedEdges", suite.TestIsAncestor_IgnoresDeletedEdges)
	test.Run("PrimaryPath", suite.TestPrimaryPath)
}

// TestIsAncestor_ThroughShare verifies the ancestor walk follows share
// edges as well as primary edges.
func (suite *StoreTestSuite) TestIsAncestor_ThroughShare(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	// root -> group (share) -> doc; root -> other
	root := NewNode(tree.KindFolder, "Root", "alice")
	group := NewNode(tree.KindFolder, "Group", "bob")
	doc := NewNode(tree.KindDocument, "Doc", "alice")
	other := NewNode(tree.KindFolder, "Other", "alice")
	PutNodes(test, store, root, group, doc, other)
	PutEdges(test, store,
		NewEdge(root.ID, group.ID, "alice", tree.ModeSharedReadWrite),
		NewEdge(group.ID, doc.ID, "bob", tree.ModeDefault),
		NewEdge(root.ID, other.ID, "alice", tree.ModeDefault),
	)

	ok, err := tree.IsAncestor(ctx, store, root.ID, doc.ID)
	require.NoError(test, err)
	assert.True(test, ok)

	ok, err = tree.IsAncestor(ctx, store, other.ID, doc.ID)
	require.NoError(test, err)
	assert.False(test, ok)

	ok, err = tree.IsAncestor(ctx, store, doc.ID, doc.ID)
	require.NoError(test, err)
	assert.True(test, ok, "a node is its own ancestor")
}

func (suite *StoreTestSuite) TestIsAncestor_IgnoresDeletedEdges(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	parent := NewNode(tree.KindFolder, "Parent", "alice")
	child := NewNode(tree.KindDocument, "Child", "alice")
	PutNodes(test, store, parent, child)

	edge := NewEdge(parent.ID, child.ID, "alice", tree.ModeDefault)
	edge.Deleted = true
	PutEdges(test, store, edge)

	ok, err := tree.IsAncestor(ctx, store, parent.ID, child.ID)
	require.NoError(test, err)
	assert.False(test, ok)
}

func (suite *StoreTestSuite) TestPrimaryPath(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	a := NewNode(tree.KindFolder, "A", "alice")
	b := NewNode(tree.KindFolder, "B", "alice")
	c := NewNode(tree.KindDocument, "C", "alice")
	share := NewNode(tree.KindFolder, "Share", "bob")
	PutNodes(test, store, a, b, c, share)
	PutEdges(test, store,
		NewEdge(a.ID, b.ID, "alice", tree.ModeDefault),
		NewEdge(b.ID, c.ID, "alice", tree.ModeDefault),
		NewEdge(share.ID, c.ID, "bob", tree.ModeSharedReadOnly),
	)

	path, err := tree.PrimaryPath(ctx, store, c.ID)
	require.NoError(test, err)
	assert.Equal(test, []tree.NodeID{b.ID, a.ID}, path)
}
