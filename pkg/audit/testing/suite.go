package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LogTestSuite is a conformance suite for audit.Log implementations.
type LogTestSuite struct {
	// NewLog creates a fresh, empty log for each test.
	NewLog func() audit.Log
}

// Run executes all tests in the suite.
func (suite *LogTestSuite) Run(test *testing.T) {
	test.Run("Append_Numbers", suite.TestAppend_Numbers)
	test.Run("Append_Concurrent", suite.TestAppend_Concurrent)
	test.Run("Get", suite.TestGet)
	test.Run("Latest_NotFound", suite.TestLatest_NotFound)
	test.Run("DeletedByOwner", suite.TestDeletedByOwner)
	test.Run("Since", suite.TestSince)
	test.Run("Snapshot_RoundTrip", suite.TestSnapshot_RoundTrip)
}

func (suite *LogTestSuite) newLog(test *testing.T) audit.Log {
	log := suite.NewLog()
	test.Cleanup(func() {
		_ = log.Close()
	})
	return log
}

var fixedTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func snapshotOf(id tree.NodeID, owner tree.UserID, name string) audit.Snapshot {
	return audit.Snapshot{Node: tree.Node{
		ID:         id,
		Kind:       tree.KindDocument,
		Name:       name,
		Owner:      owner,
		ACL:        tree.ACLDefault,
		Version:    1,
		CreatedAt:  fixedTime,
		ModifiedAt: fixedTime,
	}}
}

func appendEntry(test *testing.T, log audit.Log, id tree.NodeID, kind audit.ChangeKind, owner tree.UserID) *audit.Revision {
	test.Helper()
	rev, err := log.Append(context.Background(), audit.Entry{
		NodeID:   id,
		Kind:     kind,
		Snapshot: snapshotOf(id, owner, string(kind)),
		Actor:    owner,
	})
	require.NoError(test, err)
	return rev
}

// TestAppend_Numbers verifies revision numbers start at 1 and are per node.
func (suite *LogTestSuite) TestAppend_Numbers(test *testing.T) {
	log := suite.newLog(test)
	ctx := context.Background()

	a, b := tree.NewID(), tree.NewID()

	assert.Equal(test, uint64(1), appendEntry(test, log, a, audit.ChangeCreate, "alice").Number)
	assert.Equal(test, uint64(2), appendEntry(test, log, a, audit.ChangeUpdate, "alice").Number)
	assert.Equal(test, uint64(1), appendEntry(test, log, b, audit.ChangeCreate, "alice").Number)

	history, err := log.History(ctx, a)
	require.NoError(test, err)
	require.Len(test, history, 2)
	assert.Equal(test, audit.ChangeCreate, history[0].Kind)
	assert.Equal(test, audit.ChangeUpdate, history[1].Kind)
	assert.NotEmpty(test, history[0].ID)
	assert.False(test, history[0].Timestamp.IsZero())
}

// TestAppend_Concurrent verifies concurrent appends to one node never
// reuse a revision number.
func (suite *LogTestSuite) TestAppend_Concurrent(test *testing.T) {
	log := suite.newLog(test)
	ctx := context.Background()
	id := tree.NewID()

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := log.Append(ctx, audit.Entry{
				NodeID:   id,
				Kind:     audit.ChangeUpdate,
				Snapshot: snapshotOf(id, "alice", "concurrent"),
				Actor:    "alice",
			})
			assert.NoError(test, err)
		}()
	}
	wg.Wait()

	history, err := log.History(ctx, id)
	require.NoError(test, err)
	require.Len(test, history, writers)
	for i, rev := range history {
		assert.Equal(test, uint64(i+1), rev.Number)
	}
}

func (suite *LogTestSuite) TestGet(test *testing.T) {
	log := suite.newLog(test)
	ctx := context.Background()
	id := tree.NewID()

	appendEntry(test, log, id, audit.ChangeCreate, "alice")
	second := appendEntry(test, log, id, audit.ChangeUpdate, "alice")

	got, err := log.Get(ctx, id, 2)
	require.NoError(test, err)
	assert.Equal(test, second.ID, got.ID)

	_, err = log.Get(ctx, id, 3)
	code, ok := tree.CodeOf(err)
	require.True(test, ok)
	assert.Equal(test, tree.ErrNotFound, code)
}

func (suite *LogTestSuite) TestLatest_NotFound(test *testing.T) {
	log := suite.newLog(test)

	_, err := log.Latest(context.Background(), tree.NewID())

	assert.True(test, tree.IsCode(err, tree.ErrNotFound))
}

// TestDeletedByOwner verifies only nodes whose latest revision is a delete
// are listed, per owner.
func (suite *LogTestSuite) TestDeletedByOwner(test *testing.T) {
	log := suite.newLog(test)
	ctx := context.Background()

	deleted := tree.NewID()
	restored := tree.NewID()
	othersDeleted := tree.NewID()

	appendEntry(test, log, deleted, audit.ChangeCreate, "alice")
	del := appendEntry(test, log, deleted, audit.ChangeDelete, "alice")

	appendEntry(test, log, restored, audit.ChangeDelete, "alice")
	appendEntry(test, log, restored, audit.ChangeRestore, "alice")

	appendEntry(test, log, othersDeleted, audit.ChangeDelete, "bob")

	revs, err := log.DeletedByOwner(ctx, "alice")
	require.NoError(test, err)
	require.Len(test, revs, 1)
	assert.Equal(test, del.ID, revs[0].ID)
	assert.Equal(test, deleted, revs[0].NodeID)
}

// TestSince verifies cursor-based paging over the whole log.
func (suite *LogTestSuite) TestSince(test *testing.T) {
	log := suite.newLog(test)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, appendEntry(test, log, tree.NewID(), audit.ChangeCreate, "alice").ID)
	}

	page, err := log.Since(ctx, "", 2)
	require.NoError(test, err)
	require.Len(test, page, 2)
	assert.Equal(test, ids[0], page[0].ID)
	assert.Equal(test, ids[1], page[1].ID)

	rest, err := log.Since(ctx, page[1].ID, 0)
	require.NoError(test, err)
	require.Len(test, rest, 3)
	assert.Equal(test, ids[4], rest[2].ID)
}

// TestSnapshot_RoundTrip verifies node state and edges come back intact.
func (suite *LogTestSuite) TestSnapshot_RoundTrip(test *testing.T) {
	log := suite.newLog(test)
	ctx := context.Background()

	id := tree.NewID()
	snap := snapshotOf(id, "alice", "with edges")
	snap.Node.Deleted = true
	snap.Node.DeletedAt = fixedTime
	snap.Node.DeletedBy = "alice"
	snap.Edges = []tree.Edge{{
		Parent:       tree.NewID(),
		Child:        id,
		Owner:        "alice",
		Mode:         tree.ModeDefault,
		EffectiveACL: 0o740,
		Deleted:      true,
		CreatedAt:    fixedTime,
		ModifiedAt:   fixedTime,
	}}

	_, err := log.Append(ctx, audit.Entry{
		NodeID:      id,
		Kind:        audit.ChangeDelete,
		Snapshot:    snap,
		Actor:       "alice",
		OperationID: "op-1",
	})
	require.NoError(test, err)

	got, err := log.Latest(ctx, id)
	require.NoError(test, err)
	assert.Equal(test, snap, got.Snapshot)
	assert.Equal(test, "op-1", got.OperationID)
}
