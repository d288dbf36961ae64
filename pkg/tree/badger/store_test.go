package badger

import (
	"context"
	"testing"

	"github.com/marmos91/dittotree/pkg/tree"
	treetesting "github.com/marmos91/dittotree/pkg/tree/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBadgerTreeStore runs the Store conformance suite against an
// in-memory BadgerDB.
func TestBadgerTreeStore(t *testing.T) {
	suite := &treetesting.StoreTestSuite{
		NewStore: func() tree.Store {
			store, err := NewBadgerTreeStore(context.Background(), BadgerTreeStoreConfig{
				InMemory:         true,
				BlockCacheSizeMB: 1,
				IndexCacheSizeMB: 1,
			})
			if err != nil {
				panic(err)
			}
			return store
		},
	}

	suite.Run(t)
}

// TestBadgerTreeStore_Persistence verifies nodes and edges survive a reopen.
func TestBadgerTreeStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewBadgerTreeStore(ctx, BadgerTreeStoreConfig{DBPath: dir})
	require.NoError(t, err)

	parent := treetesting.NewNode(tree.KindFolder, "Parent", "alice")
	child := treetesting.NewNode(tree.KindDocument, "Child", "alice")
	treetesting.PutNodes(t, store, parent, child)
	treetesting.PutEdges(t, store, treetesting.NewEdge(parent.ID, child.ID, "alice", tree.ModeDefault))
	require.NoError(t, store.Close())

	reopened, err := NewBadgerTreeStore(ctx, BadgerTreeStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetNode(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, child, got)

	edges, err := reopened.ParentEdges(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, parent.ID, edges[0].Parent)
}

func TestTrailingID_RejectsCollidingPrefix(t *testing.T) {
	id := tree.NewID()

	got, ok := trailingID(keyOwner("alice", id), keyOwnerPrefix("alice"))
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = trailingID(keyOwner("alice:x", id), keyOwnerPrefix("alice"))
	assert.False(t, ok)
}
