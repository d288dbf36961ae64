package deletion

import (
	"context"
	"path"

	"github.com/google/uuid"
	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/tree"
)

// Planner computes deletion plans. It only reads the store.
type Planner struct {
	store   tree.Reader
	checker acl.Checker
}

// NewPlanner creates a Planner. A nil checker uses acl.ModeChecker.
func NewPlanner(store tree.Reader, checker acl.Checker) *Planner {
	if checker == nil {
		checker = acl.NewModeChecker()
	}
	return &Planner{store: store, checker: checker}
}

// CalculateDeletionOrder plans removing rootID from parentID on behalf of
// user.
//
// When the root has other live parents, the plan is a single unshare of the
// root. Otherwise every node reachable from the root through live edges is
// visited once (first visit wins) and emitted in post-order. A reachable
// node that still has a live parent outside the deleted set is unshared
// from its in-plan parents and its own subtree is left alone.
//
// Returns:
//   - *Plan: The plan, root last
//   - error: ErrNotFound when the root is not live under parentID,
//     ErrPermissionDenied when user may not unlink it from parentID,
//     ErrNotDeletable when any node the plan deletes (the root included)
//     is signed or not writable by user, or a node it unshares cannot be
//     unshared by user; no partial plan is returned
func (p *Planner) CalculateDeletionOrder(ctx context.Context, rootID, parentID tree.NodeID, user tree.User) (*Plan, error) {
	logger.Debug("CalculateDeletionOrder: root=%s parent=%s user=%s", rootID, parentID, user.ID)

	root, err := p.store.GetNode(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root.Deleted {
		return nil, tree.NewError(tree.ErrNotFound, rootID, "node is already deleted")
	}
	parent, err := p.store.GetNode(ctx, parentID)
	if err != nil {
		return nil, err
	}
	edge, err := p.store.GetEdge(ctx, parentID, rootID)
	if err != nil {
		return nil, err
	}
	if !edge.Live() {
		return nil, tree.NewError(tree.ErrNotFound, rootID, "not linked under %s", parentID)
	}
	if !acl.CanUnshare(ctx, p.checker, user, edge, parent, root) {
		return nil, tree.NewPermissionDeniedError(user.ID, "remove", rootID)
	}

	plan := &Plan{
		ID:       uuid.NewString(),
		User:     user,
		Parent:   parentID,
		deleting: make(map[tree.NodeID]struct{}),
	}
	if plan.Path, err = p.path(ctx, root); err != nil {
		return nil, err
	}

	rootParents, err := tree.LiveParentEdges(ctx, p.store, rootID)
	if err != nil {
		return nil, err
	}
	if len(rootParents) > 1 {
		plan.entries = []Entry{{Node: root, Parents: []tree.NodeID{parentID}, Action: ActionUnshare}}
		return plan, nil
	}

	w := &walk{planner: p, root: root, parents: make(map[tree.NodeID][]*tree.Edge)}
	if err := w.collect(ctx); err != nil {
		return nil, err
	}
	w.settle()
	if err := w.order(ctx, plan); err != nil {
		return nil, err
	}

	logger.Debug("CalculateDeletionOrder: root=%s planned %d nodes", rootID, len(plan.entries))
	return plan, nil
}

// canDelete is the single rule deciding whether user may soft-delete node.
// The planner validates every deleted entry with it and the executor
// re-checks it at execution time.
func canDelete(ctx context.Context, r tree.Reader, checker acl.Checker, user tree.User, node *tree.Node) (bool, error) {
	if node.Signed {
		return false, nil
	}
	return acl.CanWriteVia(ctx, r, checker, user, node)
}

// path builds "/name/name/..." along the primary ancestry of node.
func (p *Planner) path(ctx context.Context, node *tree.Node) (string, error) {
	ancestors, err := tree.PrimaryPath(ctx, p.store, node.ID)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(ancestors)+1)
	parts[len(ancestors)] = node.Name
	for i, id := range ancestors {
		n, err := p.store.GetNode(ctx, id)
		if err != nil {
			return "", err
		}
		parts[len(ancestors)-1-i] = n.Name
	}
	return "/" + path.Join(parts...), nil
}

// walk is the state of one planning traversal.
type walk struct {
	planner *Planner
	root    *tree.Node

	// reachable holds every node reachable from root via live edges.
	reachable map[tree.NodeID]*tree.Node

	// parents caches the live incoming edges of reachable nodes.
	parents map[tree.NodeID][]*tree.Edge

	// survivors stay live: they have a parent outside the deleted set.
	survivors map[tree.NodeID]struct{}
}

// collect loads the closure of root over live child edges.
func (w *walk) collect(ctx context.Context) error {
	w.reachable = map[tree.NodeID]*tree.Node{w.root.ID: w.root}
	queue := []tree.NodeID{w.root.ID}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := queue[0]
		queue = queue[1:]

		parents, err := tree.LiveParentEdges(ctx, w.planner.store, id)
		if err != nil {
			return err
		}
		w.parents[id] = parents

		children, err := tree.LiveChildEdges(ctx, w.planner.store, id)
		if err != nil {
			return err
		}
		for _, e := range children {
			if _, seen := w.reachable[e.Child]; seen {
				continue
			}
			child, err := w.planner.store.GetNode(ctx, e.Child)
			if err != nil {
				return err
			}
			w.reachable[e.Child] = child
			queue = append(queue, e.Child)
		}
	}
	return nil
}

// settle computes the survivors as a fixpoint: a node survives when one of
// its live parents is outside the deleted set (reachable minus survivors).
// The root never survives; its only live parent is the plan's parent.
func (w *walk) settle() {
	w.survivors = make(map[tree.NodeID]struct{})

	for changed := true; changed; {
		changed = false
		for id := range w.reachable {
			if id == w.root.ID {
				continue
			}
			if _, ok := w.survivors[id]; ok {
				continue
			}
			for _, e := range w.parents[id] {
				if !w.deleted(e.Parent) {
					w.survivors[id] = struct{}{}
					changed = true
					break
				}
			}
		}
	}
}

func (w *walk) deleted(id tree.NodeID) bool {
	if _, ok := w.reachable[id]; !ok {
		return false
	}
	_, survives := w.survivors[id]
	return !survives
}

// inPlanParents returns the live parents of id that the plan deletes.
func (w *walk) inPlanParents(id tree.NodeID) []tree.NodeID {
	var out []tree.NodeID
	for _, e := range w.parents[id] {
		if w.deleted(e.Parent) {
			out = append(out, e.Parent)
		}
	}
	return out
}

type frame struct {
	id       tree.NodeID
	children []*tree.Edge
	next     int
}

// order runs the iterative post-order traversal, validating each node as
// it is emitted.
func (w *walk) order(ctx context.Context, plan *Plan) error {
	visited := map[tree.NodeID]struct{}{w.root.ID: {}}

	rootChildren, err := tree.LiveChildEdges(ctx, w.planner.store, w.root.ID)
	if err != nil {
		return err
	}
	stack := []*frame{{id: w.root.ID, children: rootChildren}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.next < len(top.children) {
			childID := top.children[top.next].Child
			top.next++

			if _, seen := visited[childID]; seen {
				continue
			}
			visited[childID] = struct{}{}

			if !w.deleted(childID) {
				// Survivor: unshared from its in-plan parents, subtree untouched.
				if err := w.emit(ctx, plan, childID, ActionUnshare); err != nil {
					return err
				}
				continue
			}

			children, err := tree.LiveChildEdges(ctx, w.planner.store, childID)
			if err != nil {
				return err
			}
			stack = append(stack, &frame{id: childID, children: children})
			continue
		}

		stack = stack[:len(stack)-1]
		if err := w.emit(ctx, plan, top.id, ActionDelete); err != nil {
			return err
		}
	}
	return nil
}

func (w *walk) emit(ctx context.Context, plan *Plan, id tree.NodeID, action Action) error {
	node := w.reachable[id]
	checker := w.planner.checker
	user := plan.User

	entry := Entry{Node: node, Action: action}
	if id == w.root.ID {
		entry.Parents = []tree.NodeID{plan.Parent}
	} else {
		entry.Parents = w.inPlanParents(id)
	}

	switch action {
	case ActionDelete:
		if node.Signed {
			return tree.NewError(tree.ErrNotDeletable, id, "%q is signed", node.Name)
		}
		ok, err := canDelete(ctx, w.planner.store, checker, user, node)
		if err != nil {
			return err
		}
		if !ok {
			return tree.NewError(tree.ErrNotDeletable, id, "%q cannot be deleted by %s", node.Name, user.ID)
		}
		plan.deleting[id] = struct{}{}

	case ActionUnshare:
		for _, e := range w.parents[id] {
			if !w.deleted(e.Parent) {
				continue
			}
			parent := w.reachable[e.Parent]
			if !acl.CanUnshare(ctx, checker, user, e, parent, node) {
				return tree.NewError(tree.ErrNotDeletable, id, "%q cannot be unshared from %q by %s", node.Name, parent.Name, user.ID)
			}
		}
	}

	plan.entries = append(plan.entries, entry)
	return nil
}
