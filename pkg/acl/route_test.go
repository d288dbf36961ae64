package acl

import (
	"context"
	"testing"

	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/marmos91/dittotree/pkg/tree/memory"
	treetesting "github.com/marmos91/dittotree/pkg/tree/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermits_NarrowedByShareRoute(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryTreeStore()
	defer store.Close()

	checker := NewModeChecker()
	bob := tree.User{ID: "bob", Groups: []tree.GroupID{"lab"}}

	home := treetesting.NewNode(tree.KindFolder, "home", "alice")
	folder := treetesting.NewNode(tree.KindFolder, "folder", "alice")
	folder.Group, folder.ACL, folder.EffectiveACL = "lab", 0o777, 0o777
	inner := treetesting.NewNode(tree.KindFolder, "inner", "alice")
	inner.Group, inner.ACL, inner.EffectiveACL = "lab", 0o777, 0o777
	bobs := treetesting.NewNode(tree.KindFolder, "bobs", "bob")
	treetesting.PutNodes(t, store, home, folder, inner, bobs)

	share := treetesting.NewEdge(bobs.ID, folder.ID, "alice", tree.ModeSharedReadOnly)
	share.EffectiveACL = Derive(tree.ACLPrivate, folder.ACL, tree.ModeSharedReadOnly)
	treetesting.PutEdges(t, store,
		treetesting.NewEdge(home.ID, folder.ID, "alice", tree.ModeDefault),
		treetesting.NewEdge(folder.ID, inner.ID, "alice", tree.ModeDefault),
		share,
	)

	assert.True(t, checker.CanWrite(ctx, bob, folder), "group bits alone grant write")

	routes, err := ShareRoutes(ctx, store, bob, inner)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, bobs.ID, routes[0].Parent)

	for _, node := range []*tree.Node{folder, inner} {
		ok, err := CanWriteVia(ctx, store, checker, bob, node)
		require.NoError(t, err)
		assert.False(t, ok, "write through a read-only share on %s", node.Name)

		ok, err = CanShareVia(ctx, store, checker, bob, node)
		require.NoError(t, err)
		assert.False(t, ok, "share through a read-only share on %s", node.Name)

		ok, err = Permits(ctx, store, checker, bob, node, tree.PermRead)
		require.NoError(t, err)
		assert.True(t, ok, "read through a read-only share on %s", node.Name)
	}

	ok, err := CanWriteVia(ctx, store, checker, tree.User{ID: "alice"}, folder)
	require.NoError(t, err)
	assert.True(t, ok, "the owner is not narrowed")

	carol := tree.User{ID: "carol", Groups: []tree.GroupID{"lab"}}
	ok, err = CanWriteVia(ctx, store, checker, carol, folder)
	require.NoError(t, err)
	assert.True(t, ok, "no share lands in carol's folders")

	// Upgrading the share restores write.
	share.Mode = tree.ModeSharedReadWrite
	share.EffectiveACL = Derive(tree.ACLPrivate, folder.ACL, tree.ModeSharedReadWrite)
	treetesting.PutEdges(t, store, share)

	ok, err = CanWriteVia(ctx, store, checker, bob, inner)
	require.NoError(t, err)
	assert.True(t, ok)
}
