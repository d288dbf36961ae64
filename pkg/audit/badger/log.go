// Package badger implements audit.Log on BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/tree"
)

// maxAppendRetries bounds retries of an append that lost a write conflict on
// the node's head key.
const maxAppendRetries = 5

// BadgerLog implements audit.Log using BadgerDB.
//
// Appends are serialized in-process so concurrent writers of one node do
// not burn their retries on head-key conflicts.
type BadgerLog struct {
	db       *badger.DB
	appendMu sync.Mutex
}

// BadgerLogConfig configures a BadgerLog.
type BadgerLogConfig struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`
}

// NewBadgerLog opens (creating if needed) a revision log.
func NewBadgerLog(ctx context.Context, config BadgerLogConfig) (*BadgerLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING).
		WithCompression(options.Snappy). // snapshots repeat field names, compress well
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(8 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Debug("BadgerLog opened: path=%s in_memory=%v", config.DBPath, config.InMemory)
	return &BadgerLog{db: db}, nil
}

func (l *BadgerLog) Append(ctx context.Context, entry audit.Entry) (*audit.Revision, error) {
	l.appendMu.Lock()
	defer l.appendMu.Unlock()

	var rev *audit.Revision
	var err error

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		err = l.db.Update(func(txn *badger.Txn) error {
			number, err := headNumber(txn, entry.NodeID)
			if err != nil {
				return err
			}

			rev = audit.Build(entry, number+1)
			return putRevision(txn, rev)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		logger.Debug("BadgerLog.Append: conflict on node=%s, retrying (attempt %d)", entry.NodeID, attempt+1)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to append revision: %w", err)
	}
	return rev, nil
}

func headNumber(txn *badger.Txn, id tree.NodeID) (uint64, error) {
	item, err := txn.Get(keyHead(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var number uint64
	err = item.Value(func(val []byte) error {
		number, err = decodeUint64(val)
		return err
	})
	return number, err
}

func putRevision(txn *badger.Txn, rev *audit.Revision) error {
	data, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("failed to encode revision: %w", err)
	}

	revKey := keyRevision(rev.NodeID, rev.Number)
	if err := txn.Set(revKey, data); err != nil {
		return err
	}
	if err := txn.Set(keyHead(rev.NodeID), encodeUint64(rev.Number)); err != nil {
		return err
	}
	if err := txn.Set(keyOrder(rev.ID), revKey); err != nil {
		return err
	}

	deletedKey := keyDeleted(rev.Snapshot.Node.Owner, rev.NodeID)
	if rev.Kind == audit.ChangeDelete {
		return txn.Set(deletedKey, revKey)
	}
	return txn.Delete(deletedKey)
}

func readRevision(txn *badger.Txn, key []byte) (*audit.Revision, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}

	var rev audit.Revision
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode revision: %w", err)
	}
	return &rev, nil
}

func (l *BadgerLog) History(ctx context.Context, id tree.NodeID) ([]*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*audit.Revision
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyRevisionPrefix(id)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rev audit.Revision
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rev)
			}); err != nil {
				return fmt.Errorf("failed to decode revision: %w", err)
			}
			out = append(out, &rev)
		}
		return nil
	})
	return out, err
}

func (l *BadgerLog) Get(ctx context.Context, id tree.NodeID, number uint64) (*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rev *audit.Revision
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		rev, err = readRevision(txn, keyRevision(id, number))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return audit.RevisionNotFound(id, number)
		}
		return err
	})
	return rev, err
}

func (l *BadgerLog) Latest(ctx context.Context, id tree.NodeID) (*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rev *audit.Revision
	err := l.db.View(func(txn *badger.Txn) error {
		number, err := headNumber(txn, id)
		if err != nil {
			return err
		}
		if number == 0 {
			return audit.RevisionNotFound(id, 0)
		}
		rev, err = readRevision(txn, keyRevision(id, number))
		return err
	})
	return rev, err
}

func (l *BadgerLog) DeletedByOwner(ctx context.Context, owner tree.UserID) ([]*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*audit.Revision
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyDeletedPrefix(owner)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			revKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rev, err := readRevision(txn, revKey)
			if err != nil {
				return err
			}

			// The marker may outlive an ownership change; only the
			// latest revision counts.
			number, err := headNumber(txn, rev.NodeID)
			if err != nil {
				return err
			}
			if number != rev.Number || rev.Snapshot.Node.Owner != owner {
				continue
			}
			out = append(out, rev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *BadgerLog) Since(ctx context.Context, afterID string, limit int) ([]*audit.Revision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*audit.Revision
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixOrder)
		it := txn.NewIterator(opts)
		defer it.Close()

		start := keyOrder(afterID)
		for it.Seek(start); it.Valid(); it.Next() {
			if string(it.Item().Key()) == string(start) {
				continue
			}
			revKey, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rev, err := readRevision(txn, revKey)
			if err != nil {
				return err
			}
			out = append(out, rev)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (l *BadgerLog) Close() error {
	return l.db.Close()
}
