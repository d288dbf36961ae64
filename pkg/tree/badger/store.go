// Package badger implements tree.Store on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/tree"
)

// BadgerTreeStore implements tree.Store using BadgerDB for persistence.
//
// Update maps onto a BadgerDB read-write transaction, so concurrent updates
// get snapshot isolation with conflict detection: when two transactions
// write the same key the later commit fails and is reported as
// tree.ErrStaleState.
type BadgerTreeStore struct {
	db *badger.DB
}

// BadgerTreeStoreConfig contains configuration for creating a BadgerDB tree store.
type BadgerTreeStoreConfig struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path"`

	// InMemory runs BadgerDB without touching disk (tests)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`
}

// NewBadgerTreeStore opens (creating if needed) a BadgerDB tree store.
//
// Parameters:
//   - ctx: Context for cancellation
//   - config: Database path and cache sizing
//
// Returns:
//   - *BadgerTreeStore: Store ready for use
//   - error: Error if the database cannot be opened
func NewBadgerTreeStore(ctx context.Context, config BadgerTreeStoreConfig) (*BadgerTreeStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.DBPath)
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None) // values are small JSON documents

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Debug("BadgerTreeStore opened: path=%s in_memory=%v", config.DBPath, config.InMemory)
	return &BadgerTreeStore{db: db}, nil
}

func (s *BadgerTreeStore) view(ctx context.Context, fn func(tx *badgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

func (s *BadgerTreeStore) GetNode(ctx context.Context, id tree.NodeID) (*tree.Node, error) {
	var node *tree.Node
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		node, err = tx.GetNode(ctx, id)
		return err
	})
	return node, err
}

func (s *BadgerTreeStore) NodeExists(ctx context.Context, id tree.NodeID) (bool, error) {
	var exists bool
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		exists, err = tx.NodeExists(ctx, id)
		return err
	})
	return exists, err
}

func (s *BadgerTreeStore) GetEdge(ctx context.Context, parent, child tree.NodeID) (*tree.Edge, error) {
	var edge *tree.Edge
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		edge, err = tx.GetEdge(ctx, parent, child)
		return err
	})
	return edge, err
}

func (s *BadgerTreeStore) ParentEdges(ctx context.Context, child tree.NodeID) ([]*tree.Edge, error) {
	var edges []*tree.Edge
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		edges, err = tx.ParentEdges(ctx, child)
		return err
	})
	return edges, err
}

func (s *BadgerTreeStore) ChildEdges(ctx context.Context, parent tree.NodeID) ([]*tree.Edge, error) {
	var edges []*tree.Edge
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		edges, err = tx.ChildEdges(ctx, parent)
		return err
	})
	return edges, err
}

func (s *BadgerTreeStore) NodesByOwner(ctx context.Context, owner tree.UserID) ([]*tree.Node, error) {
	var nodes []*tree.Node
	err := s.view(ctx, func(tx *badgerTx) error {
		var err error
		nodes, err = tx.NodesByOwner(ctx, owner)
		return err
	})
	return nodes, err
}

// Update runs fn inside a BadgerDB read-write transaction.
func (s *BadgerTreeStore) Update(ctx context.Context, fn func(tx tree.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return &tree.StoreError{Code: tree.ErrStaleState, Message: "concurrent update conflict"}
	}
	return err
}

// Healthcheck verifies the database accepts reads.
func (s *BadgerTreeStore) Healthcheck(ctx context.Context) error {
	if s.db.IsClosed() {
		return &tree.StoreError{Code: tree.ErrIOError, Message: "badger database is closed"}
	}
	return s.view(ctx, func(tx *badgerTx) error {
		_, err := tx.txn.Get(keyNode(tree.NilID))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("badger healthcheck failed: %w", err)
		}
		return nil
	})
}

// Close closes the database.
func (s *BadgerTreeStore) Close() error {
	return s.db.Close()
}
