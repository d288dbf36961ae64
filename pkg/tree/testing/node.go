package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunNodeTests(test *testing.T) {
	test.Run("PutNode_Create", suite.TestPutNode_Create)
	test.Run("PutNode_AlreadyExists", suite.TestPutNode_AlreadyExists)
	test.Run("PutNode_StaleVersion", suite.TestPutNode_StaleVersion)
	test.Run("PutNode_UnknownVersion", suite.TestPutNode_UnknownVersion)
	test.Run("GetNode_NotFound", suite.TestGetNode_NotFound)
	test.Run("GetNode_ReturnsCopy", suite.TestGetNode_ReturnsCopy)
	test.Run("NodeExists", suite.TestNodeExists)
	test.Run("NodesByOwner", suite.TestNodesByOwner)
}

// TestPutNode_Create verifies a new node is stored with version 1.
func (suite *StoreTestSuite) TestPutNode_Create(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	// Setup
	node := NewNode(tree.KindFolder, "Projects", "alice")

	// Act
	PutNodes(test, store, node)

	// Assert
	assert.Equal(test, uint64(1), node.Version)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(test, err)
	assert.Equal(test, node, got)
}

// TestPutNode_AlreadyExists verifies a second create of the same id fails.
func (suite *StoreTestSuite) TestPutNode_AlreadyExists(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	node := NewNode(tree.KindDocument, "Report", "alice")
	PutNodes(test, store, node)

	dup := node.Clone()
	dup.Version = 0

	err := store.Update(ctx, func(tx tree.Tx) error {
		return tx.PutNode(ctx, dup)
	})

	AssertErrorCode(test, tree.ErrAlreadyExists, err)
}

// TestPutNode_StaleVersion verifies optimistic concurrency rejects an
// update based on an outdated copy.
func (suite *StoreTestSuite) TestPutNode_StaleVersion(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	// Setup - two readers load the same version
	node := NewNode(tree.KindDocument, "Report", "alice")
	PutNodes(test, store, node)

	first, err := store.GetNode(ctx, node.ID)
	require.NoError(test, err)
	second, err := store.GetNode(ctx, node.ID)
	require.NoError(test, err)

	// Act - first writer wins
	first.Name = "Report v2"
	PutNodes(test, store, first)

	second.Name = "Report (conflicting)"
	err = store.Update(ctx, func(tx tree.Tx) error {
		return tx.PutNode(ctx, second)
	})

	// Assert
	AssertErrorCode(test, tree.ErrStaleState, err)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(test, err)
	assert.Equal(test, "Report v2", got.Name)
	assert.Equal(test, uint64(2), got.Version)
}

// TestPutNode_UnknownVersion verifies updating a node that was never
// created fails with NotFound.
func (suite *StoreTestSuite) TestPutNode_UnknownVersion(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	node := NewNode(tree.KindDocument, "Ghost", "alice")
	node.Version = 3

	err := store.Update(ctx, func(tx tree.Tx) error {
		return tx.PutNode(ctx, node)
	})

	AssertErrorCode(test, tree.ErrNotFound, err)
}

func (suite *StoreTestSuite) TestGetNode_NotFound(test *testing.T) {
	store := suite.newStore(test)

	_, err := store.GetNode(context.Background(), tree.NewID())

	AssertErrorCode(test, tree.ErrNotFound, err)
}

// TestGetNode_ReturnsCopy verifies callers cannot mutate stored state
// through a returned pointer.
func (suite *StoreTestSuite) TestGetNode_ReturnsCopy(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	node := NewNode(tree.KindFolder, "Original", "alice")
	PutNodes(test, store, node)

	got, err := store.GetNode(ctx, node.ID)
	require.NoError(test, err)
	got.Name = "Mutated"

	again, err := store.GetNode(ctx, node.ID)
	require.NoError(test, err)
	assert.Equal(test, "Original", again.Name)
}

func (suite *StoreTestSuite) TestNodeExists(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	node := NewNode(tree.KindFolder, "Exists", "alice")
	PutNodes(test, store, node)

	exists, err := store.NodeExists(ctx, node.ID)
	require.NoError(test, err)
	assert.True(test, exists)

	exists, err = store.NodeExists(ctx, tree.NewID())
	require.NoError(test, err)
	assert.False(test, exists)
}

// TestNodesByOwner verifies the owner index follows ownership changes.
func (suite *StoreTestSuite) TestNodesByOwner(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	a := NewNode(tree.KindFolder, "A", "alice")
	b := NewNode(tree.KindDocument, "B", "alice")
	c := NewNode(tree.KindDocument, "C", "bob")
	PutNodes(test, store, a, b, c)

	nodes, err := store.NodesByOwner(ctx, "alice")
	require.NoError(test, err)
	assert.ElementsMatch(test, []tree.NodeID{a.ID, b.ID}, ids(nodes))

	// Act - transfer B to bob
	b.Owner = "bob"
	PutNodes(test, store, b)

	// Assert
	nodes, err = store.NodesByOwner(ctx, "alice")
	require.NoError(test, err)
	assert.ElementsMatch(test, []tree.NodeID{a.ID}, ids(nodes))

	nodes, err = store.NodesByOwner(ctx, "bob")
	require.NoError(test, err)
	assert.ElementsMatch(test, []tree.NodeID{b.ID, c.ID}, ids(nodes))
}

func ids(nodes []*tree.Node) []tree.NodeID {
	out := make([]tree.NodeID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}
