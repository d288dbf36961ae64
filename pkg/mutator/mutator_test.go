package mutator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittotree/pkg/audit"
	auditmemory "github.com/marmos91/dittotree/pkg/audit/memory"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/marmos91/dittotree/pkg/tree/memory"
	treetesting "github.com/marmos91/dittotree/pkg/tree/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = tree.User{ID: "alice"}
	bob   = tree.User{ID: "bob"}
)

type fixture struct {
	m     *Mutator
	store tree.Store
	log   audit.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewMemoryTreeStore()
	log := auditmemory.NewMemoryLog()
	t.Cleanup(func() {
		_ = store.Close()
		_ = log.Close()
	})
	return &fixture{
		m:     New(Config{Store: store, Log: log, Clock: func() time.Time { return treetesting.FixedTime }}),
		store: store,
		log:   log,
	}
}

func (f *fixture) workspace(t *testing.T, user tree.User) *tree.Node {
	t.Helper()
	ws, err := f.m.CreateWorkspace(context.Background(), user, "")
	require.NoError(t, err)
	return ws
}

func (f *fixture) add(t *testing.T, user tree.User, parent tree.NodeID, kind tree.Kind, name string) *tree.Node {
	t.Helper()
	n, err := f.m.AddChild(context.Background(), user, Placement{
		ParentID: parent,
		Child:    &tree.Node{Kind: kind, Name: name, ACL: tree.ACLGroupWrite},
		Mode:     tree.ModeDefault,
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) liveParents(t *testing.T, id tree.NodeID) []*tree.Edge {
	t.Helper()
	edges, err := tree.LiveParentEdges(context.Background(), f.store, id)
	require.NoError(t, err)
	return edges
}

func TestAddChild_CreatesNodeAndEdge(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, alice)

	folder := f.add(t, alice, ws.ID, tree.KindFolder, "Projects")

	assert.Equal(t, tree.UserID("alice"), folder.Owner)
	assert.Equal(t, uint64(1), folder.Version)
	assert.Equal(t, tree.ACLPrivate&tree.ACLGroupWrite, folder.EffectiveACL)

	parents := f.liveParents(t, folder.ID)
	require.Len(t, parents, 1)
	assert.Equal(t, ws.ID, parents[0].Parent)

	rev, err := f.log.Latest(context.Background(), folder.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.ChangeCreate, rev.Kind)
}

func TestAddChild_IdempotentReAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	doc := f.add(t, alice, ws.ID, tree.KindDocument, "Doc")

	again, err := f.m.AddChild(ctx, alice, Placement{ParentID: ws.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeDefault})
	require.NoError(t, err)
	assert.Equal(t, doc.Version, again.Version)

	children, err := f.store.ChildEdges(ctx, ws.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	history, err := f.log.History(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "no-op re-add must not append a revision")
}

func TestAddChild_CycleDetected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	w1 := f.add(t, alice, ws.ID, tree.KindFolder, "W1")
	sub := f.add(t, alice, w1.ID, tree.KindFolder, "Sub")

	_, err := f.m.AddChild(ctx, alice, Placement{ParentID: sub.ID, Child: &tree.Node{ID: w1.ID}, Mode: tree.ModeSharedReadWrite})
	treetesting.AssertErrorCode(t, tree.ErrCycleDetected, err)

	_, err = f.m.AddChild(ctx, alice, Placement{ParentID: w1.ID, Child: &tree.Node{ID: w1.ID}, Mode: tree.ModeSharedReadWrite})
	treetesting.AssertErrorCode(t, tree.ErrCycleDetected, err)

	_, err = f.store.GetEdge(ctx, sub.ID, w1.ID)
	treetesting.AssertErrorCode(t, tree.ErrNotFound, err, "no edge may be persisted")

	// A leaf below w1 cannot hold w1 either way; the cycle is what gets reported.
	doc := f.add(t, alice, sub.ID, tree.KindDocument, "Doc")
	_, err = f.m.AddChild(ctx, alice, Placement{ParentID: doc.ID, Child: &tree.Node{ID: w1.ID}, Mode: tree.ModeSharedReadWrite})
	treetesting.AssertErrorCode(t, tree.ErrCycleDetected, err)
}

func TestAddChild_InvalidPlacements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	other := f.add(t, alice, ws.ID, tree.KindFolder, "Other")
	doc := f.add(t, alice, ws.ID, tree.KindDocument, "Doc")
	notebook := f.add(t, alice, ws.ID, tree.KindNotebook, "Lab")

	t.Run("SecondPrimaryParent", func(t *testing.T) {
		_, err := f.m.AddChild(ctx, alice, Placement{ParentID: other.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeDefault})
		treetesting.AssertErrorCode(t, tree.ErrInvalidPlacement, err)
	})

	t.Run("ChildUnderLeaf", func(t *testing.T) {
		_, err := f.m.AddChild(ctx, alice, Placement{ParentID: doc.ID, Child: &tree.Node{Kind: tree.KindDocument}, Mode: tree.ModeDefault})
		treetesting.AssertErrorCode(t, tree.ErrInvalidPlacement, err)
	})

	t.Run("FolderUnderNotebook", func(t *testing.T) {
		_, err := f.m.AddChild(ctx, alice, Placement{ParentID: notebook.ID, Child: &tree.Node{Kind: tree.KindFolder}, Mode: tree.ModeDefault})
		treetesting.AssertErrorCode(t, tree.ErrInvalidPlacement, err)
	})

	t.Run("SameParentDifferentMode", func(t *testing.T) {
		_, err := f.m.AddChild(ctx, alice, Placement{ParentID: ws.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeSharedReadOnly})
		treetesting.AssertErrorCode(t, tree.ErrInvalidPlacement, err)
	})

	t.Run("NewNodeThroughShare", func(t *testing.T) {
		_, err := f.m.AddChild(ctx, alice, Placement{ParentID: other.ID, Child: &tree.Node{Kind: tree.KindDocument}, Mode: tree.ModeSharedReadOnly})
		treetesting.AssertErrorCode(t, tree.ErrInvalidPlacement, err)
	})
}

func TestAddChild_PermissionDenied(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, alice)

	_, err := f.m.AddChild(context.Background(), bob, Placement{ParentID: ws.ID, Child: &tree.Node{Kind: tree.KindDocument}, Mode: tree.ModeDefault})
	treetesting.AssertErrorCode(t, tree.ErrPermissionDenied, err)
}

func TestAddChild_ShareEdgeAffectsOnlyThatEdge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	shared := f.add(t, alice, ws.ID, tree.KindFolder, "Shared")
	doc := f.add(t, alice, ws.ID, tree.KindDocument, "Doc")

	_, err := f.m.AddChild(ctx, alice, Placement{ParentID: shared.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeSharedReadOnly})
	require.NoError(t, err)

	edge, err := f.store.GetEdge(ctx, shared.ID, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, edge.EffectiveACL&tree.ACLWriteBits, "share edge is read-only")

	stored, err := f.store.GetNode(ctx, doc.ID)
	require.NoError(t, err)
	assert.NotZero(t, stored.EffectiveACL&tree.ACLWriteBits, "primary effective ACL keeps write")
}

func TestAddChild_ReadOnlyShareRefusesWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := tree.User{ID: "bob", Groups: []tree.GroupID{"lab"}}

	ws := f.workspace(t, alice)
	f.workspace(t, member)
	_, err := f.m.SetACL(ctx, alice, ws.ID, 0o777)
	require.NoError(t, err)

	folder := func(name string) *tree.Node {
		n, err := f.m.AddChild(ctx, alice, Placement{
			ParentID: ws.ID,
			Child:    &tree.Node{Kind: tree.KindFolder, Name: name, Group: "lab", ACL: 0o777},
			Mode:     tree.ModeDefault,
		})
		require.NoError(t, err)
		return n
	}
	readOnly := folder("ReadOnly")
	readWrite := folder("ReadWrite")
	inner := f.add(t, alice, readOnly.ID, tree.KindFolder, "Inner")
	_, err = f.m.SetACL(ctx, alice, inner.ID, 0o777)
	require.NoError(t, err)

	_, err = f.m.ShareWithGroup(ctx, alice, readOnly.ID, []tree.UserID{member.ID}, tree.ModeSharedReadOnly)
	require.NoError(t, err)
	_, err = f.m.ShareWithGroup(ctx, alice, readWrite.ID, []tree.UserID{member.ID}, tree.ModeSharedReadWrite)
	require.NoError(t, err)

	newDoc := func() *tree.Node { return &tree.Node{Kind: tree.KindDocument, Name: "Note"} }

	_, err = f.m.AddChild(ctx, member, Placement{ParentID: readOnly.ID, Child: newDoc(), Mode: tree.ModeDefault})
	treetesting.AssertErrorCode(t, tree.ErrPermissionDenied, err, "read-only share")

	_, err = f.m.AddChild(ctx, member, Placement{ParentID: inner.ID, Child: newDoc(), Mode: tree.ModeDefault})
	treetesting.AssertErrorCode(t, tree.ErrPermissionDenied, err, "read-only share of an ancestor")

	_, err = f.m.AddChild(ctx, member, Placement{ParentID: readWrite.ID, Child: newDoc(), Mode: tree.ModeDefault})
	assert.NoError(t, err, "read-write share")

	// The owner is not narrowed by shares of their own folder.
	_, err = f.m.AddChild(ctx, alice, Placement{ParentID: readOnly.ID, Child: newDoc(), Mode: tree.ModeDefault})
	assert.NoError(t, err)
}

func TestPlace_FailureKeyedByAssignedID(t *testing.T) {
	f := newFixture(t)
	ws := f.workspace(t, alice)

	child := &tree.Node{Kind: tree.KindDocument, Name: "Doc"}
	result, err := f.m.Place(context.Background(), alice, []Placement{
		{ParentID: ws.ID, Child: child, Mode: tree.PropagationMode(99)},
	})
	treetesting.AssertErrorCode(t, tree.ErrInvalidArgument, err)

	require.NotEqual(t, tree.NilID, child.ID)
	outcome, ok := result.Outcome(child.ID)
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeFailed, outcome.Kind)
	_, ok = result.Outcome(tree.NilID)
	assert.False(t, ok)
}

func TestPlace_SkipOnCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	a := f.add(t, alice, ws.ID, tree.KindFolder, "A")
	b := f.add(t, alice, a.ID, tree.KindFolder, "B")
	target := f.add(t, alice, ws.ID, tree.KindFolder, "Target")

	result, err := f.m.Place(ctx, alice, []Placement{
		{ParentID: b.ID, Child: &tree.Node{ID: a.ID}, Mode: tree.ModeSharedReadWrite, OnCycle: CycleSkip},
		{ParentID: target.ID, Child: &tree.Node{ID: b.ID}, Mode: tree.ModeSharedReadWrite, OnCycle: CycleSkip},
	})
	require.NoError(t, err)

	outcome, ok := result.Outcome(a.ID)
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeSkipped, outcome.Kind)

	outcome, ok = result.Outcome(b.ID)
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeAdded, outcome.Kind)
	assert.Len(t, f.liveParents(t, b.ID), 2)
}

func TestPlace_StrictFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	a := f.add(t, alice, ws.ID, tree.KindFolder, "A")
	b := f.add(t, alice, a.ID, tree.KindFolder, "B")
	target := f.add(t, alice, ws.ID, tree.KindFolder, "Target")

	result, err := f.m.Place(ctx, alice, []Placement{
		{ParentID: target.ID, Child: &tree.Node{ID: b.ID}, Mode: tree.ModeSharedReadWrite},
		{ParentID: b.ID, Child: &tree.Node{ID: a.ID}, Mode: tree.ModeSharedReadWrite},
	})
	treetesting.AssertErrorCode(t, tree.ErrCycleDetected, err)
	assert.Equal(t, 2, result.Len())
	assert.True(t, result.HasFailures())

	assert.Len(t, f.liveParents(t, b.ID), 1, "first placement must be rolled back")
}

func TestRemoveChild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	shared := f.add(t, alice, ws.ID, tree.KindFolder, "Shared")
	doc := f.add(t, alice, ws.ID, tree.KindDocument, "Doc")

	_, err := f.m.AddChild(ctx, alice, Placement{ParentID: shared.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeSharedReadWrite})
	require.NoError(t, err)

	require.NoError(t, f.m.RemoveChild(ctx, alice, shared.ID, doc.ID))
	assert.Len(t, f.liveParents(t, doc.ID), 1)

	err = f.m.RemoveChild(ctx, alice, ws.ID, doc.ID)
	treetesting.AssertErrorCode(t, tree.ErrInvalidPlacement, err, "last parent")

	err = f.m.RemoveChild(ctx, alice, shared.ID, doc.ID)
	treetesting.AssertErrorCode(t, tree.ErrNotFound, err)

	// Re-adding the removed share revives the same edge record.
	_, err = f.m.AddChild(ctx, alice, Placement{ParentID: shared.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeSharedReadWrite})
	require.NoError(t, err)
	edges, err := f.store.ParentEdges(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	a := f.add(t, alice, ws.ID, tree.KindFolder, "A")
	b := f.add(t, alice, ws.ID, tree.KindFolder, "B")
	doc := f.add(t, alice, a.ID, tree.KindDocument, "Doc")

	moved, err := f.m.Move(ctx, alice, doc.ID, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	parents := f.liveParents(t, doc.ID)
	require.Len(t, parents, 1)
	assert.Equal(t, b.ID, parents[0].Parent)

	rev, err := f.log.Latest(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.ChangeMove, rev.Kind)
	assert.Len(t, rev.Snapshot.Edges, 2)

	moved, err = f.m.Move(ctx, alice, doc.ID, b.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestMove_CycleLeavesGraphUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	a := f.add(t, alice, ws.ID, tree.KindFolder, "A")
	b := f.add(t, alice, a.ID, tree.KindFolder, "B")

	_, err := f.m.Move(ctx, alice, a.ID, ws.ID, b.ID)
	treetesting.AssertErrorCode(t, tree.ErrCycleDetected, err)

	parents := f.liveParents(t, a.ID)
	require.Len(t, parents, 1)
	assert.Equal(t, ws.ID, parents[0].Parent)
}

func TestSetACL_Propagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)
	a := f.add(t, alice, ws.ID, tree.KindFolder, "A")
	b := f.add(t, alice, a.ID, tree.KindFolder, "B")

	suppressed, err := f.m.AddChild(ctx, alice, Placement{
		ParentID: a.ID,
		Child:    &tree.Node{Kind: tree.KindDocument, Name: "Own", ACL: tree.ACLGroupWrite},
		Mode:     tree.ModeSuppressed,
	})
	require.NoError(t, err)

	_, err = f.m.SetACL(ctx, alice, a.ID, 0o500)
	require.NoError(t, err)

	stored, err := f.store.GetNode(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, tree.ACL(0o500)&tree.ACLGroupWrite, stored.EffectiveACL)

	stored, err = f.store.GetNode(ctx, suppressed.ID)
	require.NoError(t, err)
	assert.Equal(t, tree.ACLGroupWrite, stored.EffectiveACL, "suppressed edge stops propagation")

	_, err = f.m.SetACL(ctx, bob, a.ID, 0o777)
	treetesting.AssertErrorCode(t, tree.ErrPermissionDenied, err)

	_, err = f.m.SetACL(ctx, alice, a.ID, 0o1777)
	treetesting.AssertErrorCode(t, tree.ErrInvalidArgument, err)
}

func TestCreateWorkspace_Unique(t *testing.T) {
	f := newFixture(t)
	f.workspace(t, alice)

	_, err := f.m.CreateWorkspace(context.Background(), alice, "again")
	treetesting.AssertErrorCode(t, tree.ErrAlreadyExists, err)
}

func TestFindOrCreateInbox_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ws := f.workspace(t, alice)

	const callers = 8
	ids := make([]tree.NodeID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inbox, err := f.m.FindOrCreateInbox(ctx, alice, "image/png")
			if assert.NoError(t, err) {
				ids[i] = inbox.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	children, err := tree.LiveChildEdges(ctx, f.store, ws.ID)
	require.NoError(t, err)
	assert.Len(t, children, 1)

	other, err := f.m.FindOrCreateInbox(ctx, alice, "text/plain")
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], other.ID)
}

func TestShareWithGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := tree.User{ID: "carol"}

	ws := f.workspace(t, alice)
	bobWS := f.workspace(t, bob)
	f.workspace(t, carol)
	group := f.add(t, alice, ws.ID, tree.KindFolder, "Group")

	// carol's workspace already lives below the group folder.
	carolWS, err := f.m.Workspace(ctx, "carol")
	require.NoError(t, err)
	_, err = f.m.AddChild(ctx, tree.SystemUser, Placement{ParentID: group.ID, Child: &tree.Node{ID: carolWS.ID}, Mode: tree.ModeSharedReadWrite})
	require.NoError(t, err)

	channel := notify.NewMemoryChannel("memory")
	broadcaster := notify.NewBroadcaster(notify.Config{}, nil)
	broadcaster.AddChannel(channel, nil)
	f.m.notifier = broadcaster

	result, err := f.m.ShareWithGroup(ctx, alice, group.ID, []tree.UserID{"bob", "carol", "dave"}, tree.ModeSharedReadWrite)
	require.NoError(t, err)
	require.NoError(t, broadcaster.Close(ctx))

	outcome, ok := result.Outcome(bobWS.ID)
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeAdded, outcome.Kind)

	outcome, ok = result.Outcome(carolWS.ID)
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeSkipped, outcome.Kind)

	assert.Equal(t, 2, result.Len(), "dave has no workspace")
	assert.Equal(t, group.ID, result.Parent().ID)
	assert.Len(t, f.liveParents(t, group.ID), 2)
	assert.Empty(t, channel.Events(), "alice owns the folder")

	_, err = f.m.ShareWithGroup(ctx, alice, group.ID, nil, tree.ModeDefault)
	treetesting.AssertErrorCode(t, tree.ErrInvalidArgument, err)
}

// liveGraph returns every live edge between ids as "parent>child" -> mode.
func (f *fixture) liveGraph(t *testing.T, ids []tree.NodeID) map[string]tree.PropagationMode {
	t.Helper()
	out := make(map[string]tree.PropagationMode)
	for _, id := range ids {
		edges, err := tree.LiveChildEdges(context.Background(), f.store, id)
		require.NoError(t, err)
		for _, e := range edges {
			out[e.Parent.String()+">"+e.Child.String()] = e.Mode
		}
	}
	return out
}

func assertForestAndAcyclic(t *testing.T, f *fixture, ids []tree.NodeID, step int) {
	t.Helper()
	ctx := context.Background()

	for _, id := range ids {
		primaries := 0
		for _, e := range f.liveParents(t, id) {
			if e.Primary() {
				primaries++
			}
		}
		require.LessOrEqual(t, primaries, 1, "step %d: %s has %d primary parents", step, id, primaries)
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[tree.NodeID]int, len(ids))
	var visit func(id tree.NodeID)
	visit = func(id tree.NodeID) {
		color[id] = grey
		edges, err := tree.LiveChildEdges(ctx, f.store, id)
		require.NoError(t, err)
		for _, e := range edges {
			switch color[e.Child] {
			case grey:
				require.Failf(t, "cycle", "step %d: edge %s closes a cycle", step, e)
			case white:
				visit(e.Child)
			}
		}
		color[id] = black
	}
	for _, id := range ids {
		if color[id] == white {
			visit(id)
		}
	}
}

func TestAddChildAndMove_RandomSequencesKeepGraphAcyclic(t *testing.T) {
	modes := []tree.PropagationMode{tree.ModeDefault, tree.ModeSuppressed, tree.ModeSharedReadOnly, tree.ModeSharedReadWrite}

	for _, seed := range []int64{1, 7, 42, 1234} {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			rng := rand.New(rand.NewSource(seed))

			ws := f.workspace(t, alice)
			ids := []tree.NodeID{ws.ID}
			for i := 0; i < 12; i++ {
				kind := tree.KindFolder
				if i%4 == 3 {
					kind = tree.KindDocument
				}
				parent := ws.ID
				if i > 0 && rng.Intn(2) == 0 {
					parent = ids[1+rng.Intn(len(ids)-1)]
				}
				n, err := f.m.AddChild(ctx, alice, Placement{
					ParentID: parent,
					Child:    &tree.Node{Kind: kind, Name: fmt.Sprintf("n%d", i), ACL: tree.ACLGroupWrite},
					Mode:     tree.ModeDefault,
				})
				if err != nil {
					// parent was a document
					continue
				}
				ids = append(ids, n.ID)
			}
			assertForestAndAcyclic(t, f, ids, 0)

			for step := 1; step <= 200; step++ {
				before := f.liveGraph(t, ids)
				child := ids[1+rng.Intn(len(ids)-1)]
				target := ids[rng.Intn(len(ids))]

				var err error
				if rng.Intn(2) == 0 {
					_, err = f.m.AddChild(ctx, alice, Placement{ParentID: target, Child: &tree.Node{ID: child}, Mode: modes[rng.Intn(len(modes))]})
				} else {
					parents := f.liveParents(t, child)
					from := parents[rng.Intn(len(parents))].Parent
					_, err = f.m.Move(ctx, alice, child, from, target)
				}

				if tree.IsCode(err, tree.ErrCycleDetected) {
					assert.Equal(t, before, f.liveGraph(t, ids), "step %d: a rejected cycle must change nothing", step)
				}
				assertForestAndAcyclic(t, f, ids, step)
			}
		})
	}
}
