package mutator

import (
	"context"
	"fmt"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
)

// CyclePolicy selects what a batch placement does when its edge would close
// a cycle.
type CyclePolicy int

const (
	// CycleFail aborts the batch with ErrCycleDetected
	CycleFail CyclePolicy = iota

	// CycleSkip records the placement as Skipped and continues the batch
	CycleSkip
)

// Placement describes one edge to create.
type Placement struct {
	// ParentID is the container receiving the child.
	ParentID tree.NodeID

	// Child is either an existing node (only its ID is used) or a new node
	// to persist. A new node with a nil ID is assigned one.
	Child *tree.Node

	Mode tree.PropagationMode

	// Owner owns the edge. Default: the acting user
	Owner tree.UserID

	// OnCycle applies to Place batches. AddChild always fails on a cycle.
	OnCycle CyclePolicy
}

// placed is what one successful placement changed inside a transaction.
type placed struct {
	child   *tree.Node
	edge    *tree.Edge
	created bool

	// noop is set when the identical edge was already live.
	noop bool

	// descendants whose effective ACL changed.
	descendants []*tree.Node
}

func (p *placed) changes() []change {
	if p.noop {
		return nil
	}

	kind := audit.ChangeLink
	var event notify.EventKind
	if p.created {
		kind = audit.ChangeCreate
	} else if p.edge.Mode.IsShare() {
		event = notify.EventShared
	}

	out := []change{{node: p.child, kind: kind, edges: []*tree.Edge{p.edge}, event: event}}
	for _, d := range p.descendants {
		out = append(out, change{node: d, kind: audit.ChangeACL})
	}
	return out
}

// AddChild places p.Child under p.ParentID.
//
// Adding an edge identical to a live one (same parent, child and mode) is a
// no-op returning the stored child.
//
// Returns:
//   - *tree.Node: The child as stored after the change
//   - error: ErrCycleDetected, ErrPermissionDenied, ErrInvalidPlacement,
//     ErrNotFound, or a store error; nothing is written on error
func (m *Mutator) AddChild(ctx context.Context, user tree.User, p Placement) (*tree.Node, error) {
	var result *placed

	err := m.store.Update(ctx, func(tx tree.Tx) error {
		var err error
		result, err = m.place(ctx, tx, user, p)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.record(ctx, user, newOperationID(), result.changes())
	return result.child, nil
}

// Place performs a batch of placements in one transaction.
//
// A placement whose OnCycle is CycleSkip and which would close a cycle is
// recorded as Skipped and the batch continues. Any other failure rolls the
// whole batch back and is returned together with the outcomes recorded up
// to that point (none of which were committed).
//
// Outcomes are keyed by child identifier.
func (m *Mutator) Place(ctx context.Context, user tree.User, placements []Placement) (*tree.CompositeResult, error) {
	outcomes, results, err := m.placeAll(ctx, user, placements)

	result := tree.NewCompositeResult()
	for i, o := range outcomes {
		result.Record(placements[i].Child.ID, o)
	}
	if err != nil {
		return result, err
	}

	m.recordPlaced(ctx, user, results)
	return result, nil
}

func (m *Mutator) placeAll(ctx context.Context, user tree.User, placements []Placement) ([]tree.Outcome, []*placed, error) {
	var outcomes []tree.Outcome
	var results []*placed

	err := m.store.Update(ctx, func(tx tree.Tx) error {
		outcomes = outcomes[:0]
		results = results[:0]

		for i := range placements {
			if placements[i].Child == nil {
				return &tree.StoreError{Code: tree.ErrInvalidArgument, Message: fmt.Sprintf("placement %d has no child", i)}
			}
			if placements[i].Child.ID == tree.NilID {
				placements[i].Child.ID = tree.NewID()
			}

			res, err := m.place(ctx, tx, user, placements[i])
			switch {
			case err == nil:
				results = append(results, res)
				outcomes = append(outcomes, tree.Outcome{Kind: tree.OutcomeAdded})
			case placements[i].OnCycle == CycleSkip && tree.IsCode(err, tree.ErrCycleDetected):
				logger.Warn("Place: skipping %s -> %s: %v", placements[i].ParentID, placements[i].Child.ID, err)
				outcomes = append(outcomes, tree.Outcome{Kind: tree.OutcomeSkipped, Reason: "cycle detected"})
			default:
				outcomes = append(outcomes, tree.Outcome{Kind: tree.OutcomeFailed, Reason: err.Error()})
				return err
			}
		}
		return nil
	})
	return outcomes, results, err
}

func (m *Mutator) recordPlaced(ctx context.Context, user tree.User, results []*placed) {
	opID := newOperationID()
	var changes []change
	for _, r := range results {
		changes = append(changes, r.changes()...)
	}
	m.record(ctx, user, opID, changes)
}

// place validates and writes one placement inside tx. It performs every
// check before the first write.
func (m *Mutator) place(ctx context.Context, tx tree.Tx, user tree.User, p Placement) (*placed, error) {
	if p.Child == nil {
		return nil, &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "placement has no child"}
	}
	if !p.Mode.Valid() {
		return nil, &tree.StoreError{Code: tree.ErrInvalidArgument, Message: "invalid propagation mode", ID: p.Mode.String()}
	}
	if p.Owner == "" {
		p.Owner = user.ID
	}
	if p.Child.ID == tree.NilID {
		p.Child.ID = tree.NewID()
	}

	logger.Debug("AddChild: parent=%s child=%s mode=%s user=%s", p.ParentID, p.Child.ID, p.Mode, user.ID)

	parent, err := tx.GetNode(ctx, p.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.Deleted {
		return nil, tree.NewError(tree.ErrInvalidPlacement, parent.ID, "parent is deleted")
	}
	canWrite, err := acl.CanWriteVia(ctx, tx, m.checker, user, parent)
	if err != nil {
		return nil, err
	}
	if !canWrite {
		return nil, tree.NewPermissionDeniedError(user.ID, "write", parent.ID)
	}

	exists, err := tx.NodeExists(ctx, p.Child.ID)
	if err != nil {
		return nil, err
	}

	child := p.Child.Clone()
	if exists {
		if child, err = tx.GetNode(ctx, p.Child.ID); err != nil {
			return nil, err
		}
		if err := m.checkExistingChild(ctx, tx, user, child, p.Mode); err != nil {
			return nil, err
		}

		// A cycle outranks every placement rule.
		cycle, err := tree.IsAncestor(ctx, tx, child.ID, parent.ID)
		if err != nil {
			return nil, err
		}
		if cycle {
			return nil, tree.NewError(tree.ErrCycleDetected, child.ID, "%s is an ancestor of %s", child.ID, parent.ID)
		}
	} else if p.Mode.IsShare() {
		return nil, tree.NewError(tree.ErrInvalidPlacement, child.ID, "a new node needs a primary placement")
	}

	if !parent.Kind.Accepts(child.Kind) {
		return nil, tree.NewError(tree.ErrInvalidPlacement, child.ID, "%s cannot hold %s", parent.Kind, child.Kind)
	}

	edge, err := tx.GetEdge(ctx, parent.ID, child.ID)
	if err != nil && !tree.IsCode(err, tree.ErrNotFound) {
		return nil, err
	}
	if edge != nil && edge.Live() {
		if edge.Mode == p.Mode {
			return &placed{child: child, edge: edge, noop: true}, nil
		}
		return nil, tree.NewError(tree.ErrInvalidPlacement, child.ID, "already linked under %s as %s", parent.ID, edge.Mode)
	}

	if exists && !p.Mode.IsShare() {
		parents, err := tx.ParentEdges(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		if primary := tree.PrimaryEdge(parents); primary != nil {
			return nil, tree.NewError(tree.ErrInvalidPlacement, child.ID, "already has primary parent %s", primary.Parent)
		}
	}

	// Checks done; write.
	now := m.clock()
	if edge == nil {
		edge = &tree.Edge{Parent: parent.ID, Child: child.ID, CreatedAt: now}
	}
	edge.Owner = p.Owner
	edge.Mode = p.Mode
	edge.Deleted = false
	edge.ModifiedAt = now

	if !exists {
		child.Version = 0
		if child.Owner == "" {
			child.Owner = user.ID
		}
		if child.CreatedAt.IsZero() {
			child.CreatedAt = now
		}
		child.ModifiedAt = now
		child.Deleted = false
	}

	before := child.EffectiveACL
	acl.Apply(parent, edge, child)
	nodeChanged := !exists || child.EffectiveACL != before
	if nodeChanged {
		if exists {
			child.ModifiedAt = now
		}
		if err := tx.PutNode(ctx, child); err != nil {
			return nil, err
		}
	}
	if err := tx.PutEdge(ctx, edge); err != nil {
		return nil, err
	}

	result := &placed{child: child, edge: edge, created: !exists}
	if exists && nodeChanged {
		result.descendants, err = acl.Repropagate(ctx, tx, child, now)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (m *Mutator) checkExistingChild(ctx context.Context, tx tree.Tx, user tree.User, child *tree.Node, mode tree.PropagationMode) error {
	if child.Deleted {
		return tree.NewError(tree.ErrInvalidPlacement, child.ID, "child is deleted")
	}

	right, perm := "write", tree.PermWrite
	if mode.IsShare() {
		right, perm = "share", tree.PermShare
	}
	ok, err := acl.Permits(ctx, tx, m.checker, user, child, perm)
	if err != nil {
		return err
	}
	if !ok {
		return tree.NewPermissionDeniedError(user.ID, right, child.ID)
	}
	return nil
}
