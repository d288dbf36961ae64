package deletion

import (
	"context"
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
	admin = tree.User{ID: "root", Role: tree.RoleAdmin}
)

type graph struct {
	store tree.Store
	log   audit.Log
	nodes map[string]*tree.Node
}

func newGraph(t *testing.T) *graph {
	t.Helper()
	store := memory.NewMemoryTreeStore()
	log := auditmemory.NewMemoryLog()
	t.Cleanup(func() {
		_ = store.Close()
		_ = log.Close()
	})
	return &graph{store: store, log: log, nodes: make(map[string]*tree.Node)}
}

func (g *graph) node(t *testing.T, kind tree.Kind, name string, owner tree.UserID) *tree.Node {
	t.Helper()
	n := treetesting.NewNode(kind, name, owner)
	n.ACL, n.EffectiveACL = tree.ACLPrivate, tree.ACLPrivate
	treetesting.PutNodes(t, g.store, n)
	g.nodes[name] = n
	return n
}

func (g *graph) link(t *testing.T, parent, child string, mode tree.PropagationMode) {
	t.Helper()
	p, c := g.nodes[parent], g.nodes[child]
	treetesting.PutEdges(t, g.store, treetesting.NewEdge(p.ID, c.ID, p.Owner, mode))
}

func (g *graph) id(name string) tree.NodeID {
	return g.nodes[name].ID
}

func (g *graph) names(ids []tree.NodeID) []string {
	byID := make(map[tree.NodeID]string, len(g.nodes))
	for name, n := range g.nodes {
		byID[n.ID] = name
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

func (g *graph) executor() *Executor {
	return NewExecutor(ExecutorConfig{Store: g.store, Log: g.log})
}

// nested builds Workspace > A > B > C, all owned by alice.
func nested(t *testing.T) *graph {
	g := newGraph(t)
	g.node(t, tree.KindFolder, "Workspace", "alice")
	g.node(t, tree.KindFolder, "A", "alice")
	g.node(t, tree.KindFolder, "B", "alice")
	g.node(t, tree.KindFolder, "C", "alice")
	g.link(t, "Workspace", "A", tree.ModeDefault)
	g.link(t, "A", "B", tree.ModeDefault)
	g.link(t, "B", "C", tree.ModeDefault)
	return g
}

func TestPlanner_NestedOrder(t *testing.T) {
	g := nested(t)

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(context.Background(), g.id("A"), g.id("Workspace"), alice)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "B", "A"}, g.names(plan.Nodes()))
	assert.Equal(t, g.id("A"), plan.Root())
	assert.Equal(t, "/Workspace/A", plan.Path)
	for _, e := range plan.Entries() {
		assert.Equal(t, ActionDelete, e.Action)
	}
}

func TestPlanner_DescendantsPrecedeAncestors(t *testing.T) {
	g := newGraph(t)
	g.node(t, tree.KindFolder, "W", "alice")
	g.node(t, tree.KindFolder, "R", "alice")
	g.node(t, tree.KindFolder, "X", "alice")
	g.node(t, tree.KindFolder, "Y", "alice")
	g.node(t, tree.KindDocument, "Z", "alice")
	g.link(t, "W", "R", tree.ModeDefault)
	g.link(t, "R", "X", tree.ModeDefault)
	g.link(t, "R", "Y", tree.ModeDefault)
	g.link(t, "X", "Z", tree.ModeDefault)
	// Z is also shared into Y, inside the subtree.
	g.link(t, "Y", "Z", tree.ModeSharedReadWrite)

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(context.Background(), g.id("R"), g.id("W"), alice)
	require.NoError(t, err)

	order := g.names(plan.Nodes())
	require.Len(t, order, 4, "Z appears once")

	pos := make(map[string]int)
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["Z"], pos["X"])
	assert.Less(t, pos["Z"], pos["Y"])
	assert.Less(t, pos["X"], pos["R"])
	assert.Less(t, pos["Y"], pos["R"])
	assert.Equal(t, "R", order[len(order)-1])
}

func TestPlanner_SharedRootIsUnshared(t *testing.T) {
	g := newGraph(t)
	g.node(t, tree.KindFolder, "W1", "alice")
	g.node(t, tree.KindFolder, "G1", "alice")
	g.node(t, tree.KindDocument, "D", "alice")
	g.link(t, "W1", "D", tree.ModeDefault)
	g.link(t, "G1", "D", tree.ModeSharedReadWrite)

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(context.Background(), g.id("D"), g.id("W1"), alice)
	require.NoError(t, err)
	require.Equal(t, 1, plan.Len())
	assert.Equal(t, ActionUnshare, plan.Final().Action)
	assert.Equal(t, []tree.NodeID{g.id("W1")}, plan.Final().Parents)
}

func TestPlanner_DescendantWithOutsideParentSurvives(t *testing.T) {
	g := nested(t)
	g.node(t, tree.KindFolder, "Elsewhere", "alice")
	g.node(t, tree.KindDocument, "Below", "alice")
	g.link(t, "Elsewhere", "B", tree.ModeSharedReadWrite)
	g.link(t, "B", "Below", tree.ModeDefault)

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(context.Background(), g.id("A"), g.id("Workspace"), alice)
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A"}, g.names(plan.Nodes()), "B's subtree is left alone")
	entries := plan.Entries()
	assert.Equal(t, ActionUnshare, entries[0].Action)
	assert.Equal(t, []tree.NodeID{g.id("A")}, entries[0].Parents)
	assert.False(t, plan.Deletes(g.id("B")))
	assert.True(t, plan.Deletes(g.id("A")))
}

func TestPlanner_NotDeletable(t *testing.T) {
	ctx := context.Background()

	t.Run("SignedDescendant", func(t *testing.T) {
		g := nested(t)
		c := g.nodes["C"]
		c.Signed = true
		require.NoError(t, g.store.Update(ctx, func(tx tree.Tx) error { return tx.PutNode(ctx, c) }))

		plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("A"), g.id("Workspace"), alice)
		treetesting.AssertErrorCode(t, tree.ErrNotDeletable, err)
		assert.Nil(t, plan)
	})

	t.Run("ForeignDescendant", func(t *testing.T) {
		g := nested(t)
		g.node(t, tree.KindDocument, "BobsDoc", "bob")
		g.link(t, "B", "BobsDoc", tree.ModeDefault)

		_, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("A"), g.id("Workspace"), alice)
		treetesting.AssertErrorCode(t, tree.ErrNotDeletable, err)

		_, err = NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("A"), g.id("Workspace"), admin)
		assert.NoError(t, err)
	})
}

func TestPlanner_RootNeedsSameRightAsExecution(t *testing.T) {
	ctx := context.Background()
	carol := tree.User{ID: "carol", Groups: []tree.GroupID{"lab"}}

	build := func(t *testing.T, rootACL tree.ACL) *graph {
		g := newGraph(t)
		p := g.node(t, tree.KindFolder, "P", "bob")
		x := g.node(t, tree.KindDocument, "X", "bob")
		p.Group, p.ACL, p.EffectiveACL = "lab", tree.ACLGroupWrite, tree.ACLGroupWrite
		x.Group, x.ACL, x.EffectiveACL = "lab", rootACL, rootACL
		require.NoError(t, g.store.Update(ctx, func(tx tree.Tx) error {
			if err := tx.PutNode(ctx, p); err != nil {
				return err
			}
			return tx.PutNode(ctx, x)
		}))
		g.link(t, "P", "X", tree.ModeDefault)
		return g
	}

	t.Run("PrivateRoot", func(t *testing.T) {
		g := build(t, tree.ACLPrivate)

		plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("X"), g.id("P"), carol)
		treetesting.AssertErrorCode(t, tree.ErrNotDeletable, err)
		assert.Nil(t, plan)
	})

	t.Run("GroupWritableRoot", func(t *testing.T) {
		g := build(t, tree.ACLGroupWrite)

		plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("X"), g.id("P"), carol)
		require.NoError(t, err)

		result := tree.NewCompositeResult()
		require.NoError(t, g.executor().Execute(ctx, result, plan, nil))
		outcome, ok := result.Outcome(g.id("X"))
		require.True(t, ok)
		assert.Equal(t, tree.OutcomeDeleted, outcome.Kind, outcome.Reason)
	})
}

func TestPlanner_Errors(t *testing.T) {
	g := nested(t)
	ctx := context.Background()
	planner := NewPlanner(g.store, nil)

	_, err := planner.CalculateDeletionOrder(ctx, g.id("A"), g.id("Workspace"), bob)
	treetesting.AssertErrorCode(t, tree.ErrPermissionDenied, err)

	_, err = planner.CalculateDeletionOrder(ctx, g.id("C"), g.id("A"), alice)
	treetesting.AssertErrorCode(t, tree.ErrNotFound, err)
}

func TestExecute_Nested(t *testing.T) {
	g := nested(t)
	ctx := context.Background()

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("A"), g.id("Workspace"), alice)
	require.NoError(t, err)

	type step struct {
		done, total int
		id          tree.NodeID
	}
	var steps []step
	result := tree.NewCompositeResult()
	require.NoError(t, g.executor().Execute(ctx, result, plan, func(done, total int, id tree.NodeID, _ tree.Outcome) {
		steps = append(steps, step{done, total, id})
	}))

	assert.Equal(t, []string{"C", "B", "A"}, g.names(result.IDs()))
	assert.Equal(t, 3, result.Count(tree.OutcomeDeleted))
	assert.Equal(t, g.id("Workspace"), result.Parent().ID)
	require.Len(t, steps, 3)
	assert.Equal(t, step{3, 3, g.id("A")}, steps[2])

	for _, name := range []string{"A", "B", "C"} {
		n, err := g.store.GetNode(ctx, g.id(name))
		require.NoError(t, err)
		assert.True(t, n.Deleted, name)
		assert.Equal(t, tree.UserID("alice"), n.DeletedBy)

		rev, err := g.log.Latest(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, audit.ChangeDelete, rev.Kind)
		assert.Equal(t, plan.ID, rev.OperationID)
		assert.Len(t, rev.Snapshot.Edges, 1)
	}

	children, err := tree.LiveChildEdges(ctx, g.store, g.id("Workspace"))
	require.NoError(t, err)
	assert.Empty(t, children)

	err = g.executor().Execute(ctx, tree.NewCompositeResult(), plan, nil)
	treetesting.AssertErrorCode(t, tree.ErrInvalidArgument, err, "plans run once")
}

func TestExecute_UnshareKeepsNodeLive(t *testing.T) {
	g := newGraph(t)
	ctx := context.Background()
	g.node(t, tree.KindFolder, "W1", "alice")
	g.node(t, tree.KindFolder, "G1", "alice")
	g.node(t, tree.KindDocument, "D", "alice")
	g.link(t, "W1", "D", tree.ModeDefault)
	g.link(t, "G1", "D", tree.ModeSharedReadWrite)

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("D"), g.id("W1"), alice)
	require.NoError(t, err)

	result := tree.NewCompositeResult()
	require.NoError(t, g.executor().Execute(ctx, result, plan, nil))

	outcome, ok := result.Outcome(g.id("D"))
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeUnshared, outcome.Kind)

	d, err := g.store.GetNode(ctx, g.id("D"))
	require.NoError(t, err)
	assert.False(t, d.Deleted)

	parents, err := tree.LiveParentEdges(ctx, g.store, d.ID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	assert.Equal(t, g.id("G1"), parents[0].Parent)

	// Under its last parent the same node is deleted.
	plan, err = NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("D"), g.id("G1"), alice)
	require.NoError(t, err)
	result = tree.NewCompositeResult()
	require.NoError(t, g.executor().Execute(ctx, result, plan, nil))

	outcome, _ = result.Outcome(g.id("D"))
	assert.Equal(t, tree.OutcomeDeleted, outcome.Kind)
}

func TestExecute_FailureDoesNotAbort(t *testing.T) {
	g := nested(t)
	ctx := context.Background()

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("A"), g.id("Workspace"), alice)
	require.NoError(t, err)

	// C is deleted by someone else between planning and execution.
	c, err := g.store.GetNode(ctx, g.id("C"))
	require.NoError(t, err)
	c.Deleted = true
	require.NoError(t, g.store.Update(ctx, func(tx tree.Tx) error { return tx.PutNode(ctx, c) }))

	result := tree.NewCompositeResult()
	require.NoError(t, g.executor().Execute(ctx, result, plan, nil))

	outcome, _ := result.Outcome(g.id("C"))
	assert.Equal(t, tree.OutcomeFailed, outcome.Kind)
	assert.Equal(t, 2, result.Count(tree.OutcomeDeleted))
}

func TestExecute_NotifiesOwner(t *testing.T) {
	g := nested(t)
	ctx := context.Background()

	channel := notify.NewMemoryChannel("memory")
	broadcaster := notify.NewBroadcaster(notify.Config{}, nil)
	broadcaster.AddChannel(channel, nil)

	plan, err := NewPlanner(g.store, nil).CalculateDeletionOrder(ctx, g.id("C"), g.id("B"), admin)
	require.NoError(t, err)

	executor := NewExecutor(ExecutorConfig{
		Store:    g.store,
		Log:      g.log,
		Notifier: broadcaster,
		Clock:    func() time.Time { return treetesting.FixedTime },
	})
	require.NoError(t, executor.Execute(ctx, tree.NewCompositeResult(), plan, nil))
	require.NoError(t, broadcaster.Close(ctx))

	events := channel.Events()
	require.Len(t, events, 1)
	assert.Equal(t, tree.UserID("alice"), events[0].Recipient)
	assert.Equal(t, notify.EventDeleted, events[0].Kind)
	assert.Equal(t, g.id("C"), events[0].NodeID)
}
