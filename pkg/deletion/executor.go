package deletion

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
)

// ProgressFunc is called once per processed plan entry.
type ProgressFunc func(done, total int, id tree.NodeID, outcome tree.Outcome)

// ExecutorConfig holds the collaborators of an Executor.
type ExecutorConfig struct {
	Store tree.Store

	// Log receives a Delete or Unshare revision per changed node. Optional.
	Log audit.Log

	// Checker re-checks permissions at execution time. Default: acl.ModeChecker
	Checker acl.Checker

	// Notifier tells owners their nodes were removed by someone else. Optional.
	Notifier notify.Notifier

	// Clock returns the current time. Default: time.Now in UTC
	Clock func() time.Time
}

// Executor applies deletion plans.
type Executor struct {
	store    tree.Store
	log      audit.Log
	checker  acl.Checker
	notifier notify.Notifier
	clock    func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.Checker == nil {
		config.Checker = acl.NewModeChecker()
	}
	if config.Clock == nil {
		config.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Executor{
		store:    config.Store,
		log:      config.Log,
		checker:  config.Checker,
		notifier: notify.OrNop(config.Notifier),
		clock:    config.Clock,
	}
}

// Execute applies plan in order, recording one outcome per entry into
// result, and finally sets result's parent to the plan's parent.
//
// Each entry runs in its own transaction. An entry that fails (node already
// deleted, permission lost since planning, concurrent modification) is
// recorded as Failed and the remaining entries still run. A plan can be
// executed only once.
//
// Returns:
//   - error: ErrInvalidArgument when the plan was already executed; entry
//     failures are never returned
func (e *Executor) Execute(ctx context.Context, result *tree.CompositeResult, plan *Plan, progress ProgressFunc) error {
	if plan == nil || plan.Len() == 0 {
		return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "empty deletion plan"}
	}
	if !plan.consumed.CompareAndSwap(false, true) {
		return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "deletion plan already executed", ID: plan.ID}
	}

	total := plan.Len()
	for i, entry := range plan.entries {
		outcome := e.executeEntry(ctx, plan, entry)
		result.Record(entry.Node.ID, outcome)

		if !outcome.Succeeded() {
			logger.Warn("Execute: plan=%s node=%s %s", plan.ID, entry.Node.ID, outcome)
		}
		if progress != nil {
			progress(i+1, total, entry.Node.ID, outcome)
		}
	}

	parent, err := e.store.GetNode(ctx, plan.Parent)
	if err != nil {
		logger.Warn("Execute: plan=%s cannot reload parent %s: %v", plan.ID, plan.Parent, err)
		return nil
	}
	result.SetParent(parent)
	return nil
}

// applied is what one committed entry changed.
type applied struct {
	node    *tree.Node
	edges   []*tree.Edge
	outcome tree.OutcomeKind
	acl     []*tree.Node
}

func (e *Executor) executeEntry(ctx context.Context, plan *Plan, entry Entry) tree.Outcome {
	logger.Debug("Execute: plan=%s node=%s action=%s", plan.ID, entry.Node.ID, entry.Action)

	var done *applied
	err := e.store.Update(ctx, func(tx tree.Tx) error {
		var err error
		done, err = e.apply(ctx, tx, plan, entry)
		return err
	})
	if err != nil {
		return tree.Outcome{Kind: tree.OutcomeFailed, Reason: reason(err)}
	}

	e.record(ctx, plan, done)
	return tree.Outcome{Kind: done.outcome}
}

func (e *Executor) apply(ctx context.Context, tx tree.Tx, plan *Plan, entry Entry) (*applied, error) {
	node, err := tx.GetNode(ctx, entry.Node.ID)
	if err != nil {
		return nil, err
	}
	if node.Deleted {
		return nil, errors.New("already deleted")
	}

	live, err := tree.LiveParentEdges(ctx, tx, node.ID)
	if err != nil {
		return nil, err
	}

	removing := make(map[tree.NodeID]struct{}, len(entry.Parents))
	for _, id := range entry.Parents {
		removing[id] = struct{}{}
	}

	// Parents outside the plan keep the node live.
	external := 0
	for _, edge := range live {
		if _, ok := removing[edge.Parent]; ok {
			continue
		}
		if plan.Deletes(edge.Parent) {
			continue
		}
		external++
	}

	now := e.clock()
	if external > 0 {
		return e.unshare(ctx, tx, plan.User, node, live, removing, now)
	}
	if entry.Action == ActionUnshare {
		return nil, errors.New("no parent outside the plan is left")
	}
	return e.softDelete(ctx, tx, plan.User, node, live, now)
}

func (e *Executor) unshare(ctx context.Context, tx tree.Tx, user tree.User, node *tree.Node, live []*tree.Edge, removing map[tree.NodeID]struct{}, now time.Time) (*applied, error) {
	done := &applied{node: node, outcome: tree.OutcomeUnshared}
	primaryRemoved := false

	for _, edge := range live {
		if _, ok := removing[edge.Parent]; !ok {
			continue
		}
		parent, err := tx.GetNode(ctx, edge.Parent)
		if err != nil {
			return nil, err
		}
		if !acl.CanUnshare(ctx, e.checker, user, edge, parent, node) {
			return nil, tree.NewPermissionDeniedError(user.ID, "unshare", node.ID)
		}

		edge.Deleted = true
		edge.ModifiedAt = now
		if err := tx.PutEdge(ctx, edge); err != nil {
			return nil, err
		}
		done.edges = append(done.edges, edge)
		primaryRemoved = primaryRemoved || edge.Primary()
	}

	if len(done.edges) == 0 {
		return nil, errors.New("not linked under the plan's parents")
	}

	if primaryRemoved {
		changed, err := acl.Detach(ctx, tx, node, now)
		if err != nil {
			return nil, err
		}
		if len(changed) > 1 {
			done.acl = changed[1:]
		}
	}
	return done, nil
}

func (e *Executor) softDelete(ctx context.Context, tx tree.Tx, user tree.User, node *tree.Node, live []*tree.Edge, now time.Time) (*applied, error) {
	if node.Signed {
		return nil, tree.NewError(tree.ErrNotDeletable, node.ID, "node is signed")
	}
	ok, err := canDelete(ctx, tx, e.checker, user, node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, tree.NewPermissionDeniedError(user.ID, "delete", node.ID)
	}

	done := &applied{node: node, outcome: tree.OutcomeDeleted}
	for _, edge := range live {
		edge.Deleted = true
		edge.ModifiedAt = now
		if err := tx.PutEdge(ctx, edge); err != nil {
			return nil, err
		}
		done.edges = append(done.edges, edge)
	}

	node.Deleted = true
	node.DeletedAt = now
	node.DeletedBy = user.ID
	node.ModifiedAt = now
	if err := tx.PutNode(ctx, node); err != nil {
		return nil, err
	}
	return done, nil
}

func (e *Executor) record(ctx context.Context, plan *Plan, done *applied) {
	kind, event := audit.ChangeDelete, notify.EventDeleted
	if done.outcome == tree.OutcomeUnshared {
		kind, event = audit.ChangeUnshare, notify.EventUnshared
	}

	entries := []audit.Entry{{
		NodeID:      done.node.ID,
		Kind:        kind,
		Snapshot:    audit.NewSnapshot(done.node, done.edges...),
		Actor:       plan.User.ID,
		OperationID: plan.ID,
	}}
	for _, n := range done.acl {
		entries = append(entries, audit.Entry{
			NodeID:      n.ID,
			Kind:        audit.ChangeACL,
			Snapshot:    audit.NewSnapshot(n),
			Actor:       plan.User.ID,
			OperationID: plan.ID,
		})
	}
	audit.Record(ctx, e.log, entries...)

	if ev, ok := notify.OwnerEvent(done.node, event, plan.User.ID); ok {
		e.notifier.Notify(ctx, ev)
	}
}

// reason renders an entry failure for a Failed outcome.
func reason(err error) string {
	var se *tree.StoreError
	if errors.As(err, &se) {
		return se.Code.String() + ": " + se.Message
	}
	return err.Error()
}
