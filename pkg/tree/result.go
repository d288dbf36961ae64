package tree

import (
	"fmt"
	"sync"
)

// OutcomeKind is the per-node result of a batch operation.
type OutcomeKind int

const (
	// OutcomeDeleted means the node was soft-deleted
	OutcomeDeleted OutcomeKind = iota + 1

	// OutcomeUnshared means one edge was removed and the node stays live elsewhere
	OutcomeUnshared

	// OutcomeAdded means an edge was created or revived
	OutcomeAdded

	// OutcomeRestored means the node was brought back from soft-deleted state
	OutcomeRestored

	// OutcomeSkipped means the node was intentionally left untouched
	OutcomeSkipped

	// OutcomeFailed means the operation on this node failed
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeUnshared:
		return "unshared"
	case OutcomeAdded:
		return "added"
	case OutcomeRestored:
		return "restored"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is what happened to one node. Reason is set for Skipped and Failed.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
}

// Succeeded reports whether the node changed state.
func (o Outcome) Succeeded() bool {
	return o.Kind != OutcomeSkipped && o.Kind != OutcomeFailed
}

// CompositeResult collects per-node outcomes of a batch operation, plus the
// resulting parent node for navigation.
//
// It is built incrementally by the operation that owns it and should be
// treated as read-only once that operation returns. Recording the same node
// twice keeps the latest outcome but the original position.
type CompositeResult struct {
	mu       sync.RWMutex
	order    []NodeID
	outcomes map[NodeID]Outcome
	parent   *Node
}

// NewCompositeResult returns an empty result.
func NewCompositeResult() *CompositeResult {
	return &CompositeResult{outcomes: make(map[NodeID]Outcome)}
}

// Record stores the outcome for id.
func (r *CompositeResult) Record(id NodeID, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.outcomes[id]; !exists {
		r.order = append(r.order, id)
	}
	r.outcomes[id] = outcome
}

// Fail is shorthand for recording a Failed outcome.
func (r *CompositeResult) Fail(id NodeID, reason string) {
	r.Record(id, Outcome{Kind: OutcomeFailed, Reason: reason})
}

// Skip is shorthand for recording a Skipped outcome.
func (r *CompositeResult) Skip(id NodeID, reason string) {
	r.Record(id, Outcome{Kind: OutcomeSkipped, Reason: reason})
}

// SetParent sets the navigation parent.
func (r *CompositeResult) SetParent(parent *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parent = parent.Clone()
}

// Parent returns the navigation parent, or nil.
func (r *CompositeResult) Parent() *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parent.Clone()
}

// Outcome returns the outcome recorded for id.
func (r *CompositeResult) Outcome(id NodeID) (Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.outcomes[id]
	return o, ok
}

// IDs returns the recorded node identifiers in first-recorded order.
func (r *CompositeResult) IDs() []NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeID, len(r.order))
	copy(out, r.order)
	return out
}

// Outcomes returns a copy of the outcome map.
func (r *CompositeResult) Outcomes() map[NodeID]Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[NodeID]Outcome, len(r.outcomes))
	for id, o := range r.outcomes {
		out[id] = o
	}
	return out
}

// Len returns the number of recorded nodes.
func (r *CompositeResult) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Count returns how many nodes ended with the given outcome kind.
func (r *CompositeResult) Count(kind OutcomeKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, o := range r.outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// HasFailures reports whether any node failed.
func (r *CompositeResult) HasFailures() bool {
	return r.Count(OutcomeFailed) > 0
}
