package testing

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunEdgeTests(test *testing.T) {
	test.Run("PutEdge_Success", suite.TestPutEdge_Success)
	test.Run("PutEdge_MissingEndpoint", suite.TestPutEdge_MissingEndpoint)
	test.Run("PutEdge_ReplacesPair", suite.TestPutEdge_ReplacesPair)
	test.Run("GetEdge_NotFound", suite.TestGetEdge_NotFound)
	test.Run("ChildEdges_Ordered", suite.TestChildEdges_Ordered)
	test.Run("ParentEdges_MultiParent", suite.TestParentEdges_MultiParent)
}

func (suite *StoreTestSuite) TestPutEdge_Success(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	parent := NewNode(tree.KindFolder, "Parent", "alice")
	child := NewNode(tree.KindDocument, "Child", "alice")
	PutNodes(test, store, parent, child)

	edge := NewEdge(parent.ID, child.ID, "alice", tree.ModeDefault)
	PutEdges(test, store, edge)

	got, err := store.GetEdge(ctx, parent.ID, child.ID)
	require.NoError(test, err)
	assert.Equal(test, edge, got)
}

func (suite *StoreTestSuite) TestPutEdge_MissingEndpoint(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	parent := NewNode(tree.KindFolder, "Parent", "alice")
	PutNodes(test, store, parent)

	err := store.Update(ctx, func(tx tree.Tx) error {
		return tx.PutEdge(ctx, NewEdge(parent.ID, tree.NewID(), "alice", tree.ModeDefault))
	})

	AssertErrorCode(test, tree.ErrNotFound, err)
}

// TestPutEdge_ReplacesPair verifies a pair holds a single edge record:
// soft-deleting and reviving it never produces a duplicate.
func (suite *StoreTestSuite) TestPutEdge_ReplacesPair(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	parent := NewNode(tree.KindFolder, "Parent", "alice")
	child := NewNode(tree.KindDocument, "Child", "alice")
	PutNodes(test, store, parent, child)

	edge := NewEdge(parent.ID, child.ID, "alice", tree.ModeDefault)
	PutEdges(test, store, edge)

	edge.Deleted = true
	PutEdges(test, store, edge)

	edge.Deleted = false
	PutEdges(test, store, edge)

	children, err := store.ChildEdges(ctx, parent.ID)
	require.NoError(test, err)
	require.Len(test, children, 1)
	assert.False(test, children[0].Deleted)

	parents, err := store.ParentEdges(ctx, child.ID)
	require.NoError(test, err)
	require.Len(test, parents, 1)
}

func (suite *StoreTestSuite) TestGetEdge_NotFound(test *testing.T) {
	store := suite.newStore(test)

	_, err := store.GetEdge(context.Background(), tree.NewID(), tree.NewID())

	AssertErrorCode(test, tree.ErrNotFound, err)
}

// TestChildEdges_Ordered verifies children come back in creation order and
// soft-deleted edges are included.
func (suite *StoreTestSuite) TestChildEdges_Ordered(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	notebook := NewNode(tree.KindNotebook, "Lab notebook", "alice")
	first := NewNode(tree.KindDocument, "Entry 1", "alice")
	second := NewNode(tree.KindDocument, "Entry 2", "alice")
	third := NewNode(tree.KindDocument, "Entry 3", "alice")
	PutNodes(test, store, notebook, first, second, third)

	e3 := NewEdge(notebook.ID, third.ID, "alice", tree.ModeDefault)
	e3.CreatedAt = FixedTime.Add(3 * time.Minute)
	e1 := NewEdge(notebook.ID, first.ID, "alice", tree.ModeDefault)
	e1.CreatedAt = FixedTime.Add(1 * time.Minute)
	e2 := NewEdge(notebook.ID, second.ID, "alice", tree.ModeDefault)
	e2.CreatedAt = FixedTime.Add(2 * time.Minute)
	e2.Deleted = true
	PutEdges(test, store, e3, e1, e2)

	edges, err := store.ChildEdges(ctx, notebook.ID)
	require.NoError(test, err)
	require.Len(test, edges, 3)
	assert.Equal(test, first.ID, edges[0].Child)
	assert.Equal(test, second.ID, edges[1].Child)
	assert.Equal(test, third.ID, edges[2].Child)

	live, err := tree.LiveChildEdges(ctx, store, notebook.ID)
	require.NoError(test, err)
	assert.Len(test, live, 2)
}

// TestParentEdges_MultiParent verifies a node can have one primary and
// several share parents.
func (suite *StoreTestSuite) TestParentEdges_MultiParent(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	workspace := NewNode(tree.KindFolder, "Workspace", "alice")
	shared := NewNode(tree.KindFolder, "Group share", "bob")
	doc := NewNode(tree.KindDocument, "Doc", "alice")
	PutNodes(test, store, workspace, shared, doc)

	PutEdges(test, store,
		NewEdge(workspace.ID, doc.ID, "alice", tree.ModeDefault),
		NewEdge(shared.ID, doc.ID, "bob", tree.ModeSharedReadOnly),
	)

	edges, err := store.ParentEdges(ctx, doc.ID)
	require.NoError(test, err)
	require.Len(test, edges, 2)

	primary := tree.PrimaryEdge(edges)
	require.NotNil(test, primary)
	assert.Equal(test, workspace.ID, primary.Parent)
}
