package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/internal/ratelimiter"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/audit/archive"
	auditbadger "github.com/marmos91/dittotree/pkg/audit/badger"
	auditmemory "github.com/marmos91/dittotree/pkg/audit/memory"
	auditsqlite "github.com/marmos91/dittotree/pkg/audit/sqlite"
	"github.com/marmos91/dittotree/pkg/metrics"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
	treebadger "github.com/marmos91/dittotree/pkg/tree/badger"
	treememory "github.com/marmos91/dittotree/pkg/tree/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateTreeStore creates a tree store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/tree/memory (lost on exit)
//   - "badger": Uses pkg/tree/badger (persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Tree store configuration
//
// Returns:
//   - tree.Store: Initialized store
//   - error: Configuration or initialization error
func CreateTreeStore(ctx context.Context, cfg *StoreConfig) (tree.Store, error) {
	switch cfg.Type {
	case "memory":
		return treememory.NewMemoryTreeStore(), nil
	case "badger":
		var badgerCfg treebadger.BadgerTreeStoreConfig
		if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
			return nil, fmt.Errorf("invalid store.badger config: %w", err)
		}
		store, err := treebadger.NewBadgerTreeStore(ctx, badgerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger tree store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown tree store type: %q", cfg.Type)
	}
}

// CreateAuditLog creates a revision log based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/audit/memory
//   - "badger": Uses pkg/audit/badger
//   - "sqlite": Uses pkg/audit/sqlite
func CreateAuditLog(ctx context.Context, cfg *AuditConfig) (audit.Log, error) {
	switch cfg.Type {
	case "memory":
		return auditmemory.NewMemoryLog(), nil
	case "badger":
		var badgerCfg auditbadger.BadgerLogConfig
		if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
			return nil, fmt.Errorf("invalid audit.badger config: %w", err)
		}
		log, err := auditbadger.NewBadgerLog(ctx, badgerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger audit log: %w", err)
		}
		return log, nil
	case "sqlite":
		var sqliteCfg auditsqlite.SQLiteLogConfig
		if err := mapstructure.Decode(cfg.SQLite, &sqliteCfg); err != nil {
			return nil, fmt.Errorf("invalid audit.sqlite config: %w", err)
		}
		log, err := auditsqlite.NewSQLiteLog(ctx, sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite audit log: %w", err)
		}
		return log, nil
	default:
		return nil, fmt.Errorf("unknown audit log type: %q", cfg.Type)
	}
}

// CreateArchiver creates the revision archiver, or returns nil when
// archiving is disabled. The archiver is not started.
func CreateArchiver(ctx context.Context, cfg *ArchiveConfig, log audit.Log, m metrics.EngineMetrics) (*archive.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	store, err := createObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return archive.NewArchiver(log, store, archive.Config{
		Enabled:   cfg.Enabled,
		Interval:  cfg.Interval,
		BatchSize: cfg.BatchSize,
		DryRun:    cfg.DryRun,
	}, m)
}

// createObjectStore creates the archive destination.
func createObjectStore(ctx context.Context, cfg *ArchiveConfig) (archive.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		logger.Warn("Archive: using in-memory object store, archived revisions are lost on exit")
		return archive.NewMemoryObjectStore(), nil
	case "s3":
		s3Cfg, err := decodeS3Config(cfg.S3)
		if err != nil {
			return nil, err
		}
		client, err := archive.NewS3Client(ctx, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		store, err := archive.NewS3ObjectStore(ctx, client, s3Cfg.Bucket, s3Cfg.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 object store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive type: %q", cfg.Type)
	}
}

// CreateNotifier creates the notification broadcaster with its log channel.
// A zero requests_per_second leaves the channel unthrottled.
func CreateNotifier(cfg *NotifyConfig, m metrics.EngineMetrics) *notify.Broadcaster {
	b := notify.NewBroadcaster(notify.Config{
		QueueSize:       cfg.QueueSize,
		DeliveryTimeout: cfg.DeliveryTimeout,
	}, m)

	limiter := ratelimiter.Unlimited()
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = ratelimiter.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}
	b.AddChannel(notify.LogChannel{}, limiter)

	return b
}
