package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (suite *StoreTestSuite) RunUpdateTests(test *testing.T) {
	test.Run("Update_RollbackOnError", suite.TestUpdate_RollbackOnError)
	test.Run("Update_ReadYourWrites", suite.TestUpdate_ReadYourWrites)
	test.Run("Update_CancelledContext", suite.TestUpdate_CancelledContext)
}

// TestUpdate_RollbackOnError verifies no write of a failed transaction is
// visible afterwards.
func (suite *StoreTestSuite) TestUpdate_RollbackOnError(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	// Setup
	parent := NewNode(tree.KindFolder, "Parent", "alice")
	PutNodes(test, store, parent)

	child := NewNode(tree.KindDocument, "Child", "alice")
	boom := errors.New("boom")

	// Act
	err := store.Update(ctx, func(tx tree.Tx) error {
		if err := tx.PutNode(ctx, child); err != nil {
			return err
		}
		if err := tx.PutEdge(ctx, NewEdge(parent.ID, child.ID, "alice", tree.ModeDefault)); err != nil {
			return err
		}
		renamed := parent.Clone()
		renamed.Name = "Renamed"
		if err := tx.PutNode(ctx, renamed); err != nil {
			return err
		}
		return boom
	})

	// Assert
	require.ErrorIs(test, err, boom)

	exists, err := store.NodeExists(ctx, child.ID)
	require.NoError(test, err)
	assert.False(test, exists, "node created in a failed transaction must not exist")

	edges, err := store.ChildEdges(ctx, parent.ID)
	require.NoError(test, err)
	assert.Empty(test, edges)

	got, err := store.GetNode(ctx, parent.ID)
	require.NoError(test, err)
	assert.Equal(test, "Parent", got.Name)
	assert.Equal(test, uint64(1), got.Version)
}

func (suite *StoreTestSuite) TestUpdate_ReadYourWrites(test *testing.T) {
	store := suite.newStore(test)
	ctx := context.Background()

	parent := NewNode(tree.KindFolder, "Parent", "alice")
	child := NewNode(tree.KindDocument, "Child", "alice")

	err := store.Update(ctx, func(tx tree.Tx) error {
		if err := tx.PutNode(ctx, parent); err != nil {
			return err
		}
		if err := tx.PutNode(ctx, child); err != nil {
			return err
		}
		if err := tx.PutEdge(ctx, NewEdge(parent.ID, child.ID, "alice", tree.ModeDefault)); err != nil {
			return err
		}

		edges, err := tx.ChildEdges(ctx, parent.ID)
		if err != nil {
			return err
		}
		assert.Len(test, edges, 1)

		parents, err := tx.ParentEdges(ctx, child.ID)
		if err != nil {
			return err
		}
		assert.Len(test, parents, 1)
		return nil
	})
	require.NoError(test, err)
}

func (suite *StoreTestSuite) TestUpdate_CancelledContext(test *testing.T) {
	store := suite.newStore(test)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Update(ctx, func(tx tree.Tx) error {
		called = true
		return nil
	})

	require.ErrorIs(test, err, context.Canceled)
	assert.False(test, called)
}
