package engine

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittotree/pkg/audit"
	auditmemory "github.com/marmos91/dittotree/pkg/audit/memory"
	"github.com/marmos91/dittotree/pkg/mutator"
	"github.com/marmos91/dittotree/pkg/tree"
	"github.com/marmos91/dittotree/pkg/tree/memory"
	treetesting "github.com/marmos91/dittotree/pkg/tree/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var spans = tracetest.NewSpanRecorder()

func TestMain(m *testing.M) {
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	otel.SetTracerProvider(provider)

	code := m.Run()
	_ = provider.Shutdown(context.Background())
	os.Exit(code)
}

var alice = tree.User{ID: "alice", Groups: []tree.GroupID{"team"}}

// recordingMetrics captures operation metrics.
type recordingMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	failures   map[string]int
	outcomes   map[string]int
	planSizes  []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		operations: make(map[string]int),
		failures:   make(map[string]int),
		outcomes:   make(map[string]int),
	}
}

func (m *recordingMetrics) RecordOperation(operation string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[operation]++
	if err != nil {
		m.failures[operation]++
	}
}

func (m *recordingMetrics) RecordOutcome(operation, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[operation+"/"+outcome]++
}

func (m *recordingMetrics) ObservePlanSize(nodes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planSizes = append(m.planSizes, nodes)
}

func (m *recordingMetrics) RecordNotification(string, string) {}
func (m *recordingMetrics) RecordArchive(int, error)          {}

func newEngine(t *testing.T) (*Engine, *recordingMetrics) {
	t.Helper()
	rec := newRecordingMetrics()
	e, err := New(Config{
		Store:   memory.NewMemoryTreeStore(),
		Log:     auditmemory.NewMemoryLog(),
		Metrics: rec,
		Clock:   func() time.Time { return treetesting.FixedTime },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, rec
}

func add(t *testing.T, e *Engine, parent tree.NodeID, kind tree.Kind, name string) *tree.Node {
	t.Helper()
	n, err := e.AddChild(context.Background(), alice, mutator.Placement{
		ParentID: parent,
		Child:    &tree.Node{Kind: kind, Name: name, ACL: tree.ACLGroupWrite},
		Mode:     tree.ModeDefault,
	})
	require.NoError(t, err)
	return n
}

func TestNew_RequiresStoreAndLog(t *testing.T) {
	_, err := New(Config{Log: auditmemory.NewMemoryLog()})
	assert.Error(t, err)

	_, err = New(Config{Store: memory.NewMemoryTreeStore()})
	assert.Error(t, err)
}

func TestScenario_DeleteNestedFolders(t *testing.T) {
	e, rec := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)
	a := add(t, e, ws.ID, tree.KindFolder, "A")
	b := add(t, e, a.ID, tree.KindFolder, "B")
	c := add(t, e, b.ID, tree.KindFolder, "C")

	plan, err := e.CalculateDeletionOrder(ctx, a.ID, ws.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, []tree.NodeID{c.ID, b.ID, a.ID}, plan.Nodes())

	result := tree.NewCompositeResult()
	require.NoError(t, e.Execute(ctx, result, plan, nil))

	for _, id := range []tree.NodeID{a.ID, b.ID, c.ID} {
		outcome, ok := result.Outcome(id)
		require.True(t, ok)
		assert.Equal(t, tree.OutcomeDeleted, outcome.Kind)
	}
	require.NotNil(t, result.Parent())
	assert.Equal(t, ws.ID, result.Parent().ID)

	assert.Equal(t, []int{3}, rec.planSizes)
	assert.Equal(t, 3, rec.outcomes["execute_deletion/deleted"])
}

func TestScenario_DeleteSharedDocumentUnshares(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)
	w1 := add(t, e, ws.ID, tree.KindFolder, "W1")
	shared := add(t, e, ws.ID, tree.KindFolder, "GroupShared")
	g1 := add(t, e, shared.ID, tree.KindFolder, "G1")
	d := add(t, e, w1.ID, tree.KindDocument, "D")

	_, err = e.AddChild(ctx, alice, mutator.Placement{ParentID: g1.ID, Child: &tree.Node{ID: d.ID}, Mode: tree.ModeSharedReadWrite})
	require.NoError(t, err)

	result, err := e.Delete(ctx, alice, d.ID, w1.ID, nil)
	require.NoError(t, err)

	outcome, ok := result.Outcome(d.ID)
	require.True(t, ok)
	assert.Equal(t, tree.OutcomeUnshared, outcome.Kind)

	node, err := e.Node(ctx, alice, d.ID)
	require.NoError(t, err)
	assert.False(t, node.Deleted)

	reachable, err := tree.IsAncestor(ctx, e.Store(), g1.ID, d.ID)
	require.NoError(t, err)
	assert.True(t, reachable)

	children, err := e.Children(ctx, alice, w1.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestScenario_CycleRejected(t *testing.T) {
	e, rec := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)
	w1 := add(t, e, ws.ID, tree.KindFolder, "W1")
	d := add(t, e, w1.ID, tree.KindDocument, "D")

	for _, mode := range []tree.PropagationMode{tree.ModeSharedReadWrite, tree.ModeDefault} {
		_, err = e.AddChild(ctx, alice, mutator.Placement{ParentID: d.ID, Child: &tree.Node{ID: w1.ID}, Mode: mode})
		treetesting.AssertErrorCode(t, tree.ErrCycleDetected, err, mode.String())
	}

	_, err = e.Store().GetEdge(ctx, d.ID, w1.ID)
	treetesting.AssertErrorCode(t, tree.ErrNotFound, err)

	assert.Equal(t, 2, rec.failures["add_child"])
}

func TestScenario_IdempotentReAdd(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)
	doc := add(t, e, ws.ID, tree.KindDocument, "Doc")

	for range 3 {
		_, err := e.AddChild(ctx, alice, mutator.Placement{ParentID: ws.ID, Child: &tree.Node{ID: doc.ID}, Mode: tree.ModeDefault})
		require.NoError(t, err)
	}

	edges, err := e.Store().ChildEdges(ctx, ws.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestScenario_DeleteThenRestoreRoundTrip(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)
	a := add(t, e, ws.ID, tree.KindFolder, "A")
	b := add(t, e, a.ID, tree.KindDocument, "B")

	before, err := e.Node(ctx, alice, b.ID)
	require.NoError(t, err)

	_, err = e.Delete(ctx, alice, a.ID, ws.ID, nil)
	require.NoError(t, err)

	deleted, err := e.ListDeleted(ctx, alice, alice.ID)
	require.NoError(t, err)
	assert.Len(t, deleted, 2)

	restored, err := e.FullRestore(ctx, alice, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, restored.TopLevel.ID)

	after, err := e.Node(ctx, alice, b.ID)
	require.NoError(t, err)
	assert.False(t, after.Deleted)
	assert.Equal(t, before.EffectiveACL, after.EffectiveACL)
	assert.Equal(t, before.Name, after.Name)

	children, err := e.Children(ctx, alice, ws.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, a.ID, children[0].ID)

	history, err := e.History(ctx, alice, b.ID)
	require.NoError(t, err)
	kinds := make([]audit.ChangeKind, 0, len(history))
	for _, rev := range history {
		kinds = append(kinds, rev.Kind)
	}
	assert.Equal(t, []audit.ChangeKind{audit.ChangeCreate, audit.ChangeDelete, audit.ChangeRestore}, kinds)
}

func TestNode_PermissionDenied(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)

	_, err = e.Node(ctx, tree.User{ID: "mallory"}, ws.ID)
	treetesting.AssertErrorCode(t, tree.ErrPermissionDenied, err)
}

func TestOperations_AreTraced(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	ws, err := e.CreateWorkspace(ctx, alice, "")
	require.NoError(t, err)
	_, err = e.SetACL(ctx, tree.User{ID: "mallory"}, ws.ID, tree.ACLPrivate)
	require.Error(t, err)

	var found bool
	for _, span := range spans.Ended() {
		if span.Name() != "engine.SetACL" {
			continue
		}
		found = true
		assert.Equal(t, codes.Error, span.Status().Code)
		assert.NotEmpty(t, span.Events(), "error should be recorded on the span")
	}
	assert.True(t, found, "expected an engine.SetACL span")
}
