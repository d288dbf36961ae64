// Package memory implements audit.Log in memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
)

// MemoryLog keeps revisions in per-node slices plus a global slice sorted
// by revision ID.
type MemoryLog struct {
	mu     sync.RWMutex
	byNode map[tree.NodeID][]*audit.Revision
	all    []*audit.Revision
}

// NewMemoryLog creates an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{byNode: make(map[tree.NodeID][]*audit.Revision)}
}

func (l *MemoryLog) Append(ctx context.Context, entry audit.Entry) (*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.byNode[entry.NodeID]
	rev := audit.Build(entry, uint64(len(history))+1)

	l.byNode[entry.NodeID] = append(history, rev)

	// Entries may carry an explicit timestamp, so keep all sorted by ID
	// rather than by arrival.
	i := sort.Search(len(l.all), func(i int) bool { return l.all[i].ID > rev.ID })
	l.all = append(l.all, nil)
	copy(l.all[i+1:], l.all[i:])
	l.all[i] = rev

	c := *rev
	return &c, nil
}

func (l *MemoryLog) History(ctx context.Context, id tree.NodeID) ([]*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyRevisions(l.byNode[id]), nil
}

func (l *MemoryLog) Get(ctx context.Context, id tree.NodeID, number uint64) (*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byNode[id]
	if number == 0 || number > uint64(len(history)) {
		return nil, audit.RevisionNotFound(id, number)
	}
	c := *history[number-1]
	return &c, nil
}

func (l *MemoryLog) Latest(ctx context.Context, id tree.NodeID) (*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.byNode[id]
	if len(history) == 0 {
		return nil, audit.RevisionNotFound(id, 0)
	}
	c := *history[len(history)-1]
	return &c, nil
}

func (l *MemoryLog) DeletedByOwner(ctx context.Context, owner tree.UserID) ([]*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*audit.Revision
	for _, history := range l.byNode {
		latest := history[len(history)-1]
		if latest.Kind == audit.ChangeDelete && latest.Snapshot.Node.Owner == owner {
			c := *latest
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *MemoryLog) Since(ctx context.Context, afterID string, limit int) ([]*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := sort.Search(len(l.all), func(i int) bool { return l.all[i].ID > afterID })
	end := len(l.all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return copyRevisions(l.all[start:end]), nil
}

func (l *MemoryLog) Close() error {
	return nil
}

func copyRevisions(in []*audit.Revision) []*audit.Revision {
	out := make([]*audit.Revision, len(in))
	for i, r := range in {
		c := *r
		out[i] = &c
	}
	return out
}
