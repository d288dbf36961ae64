// Package archive ships audit revisions to object storage.
//
// The Archiver runs in the background and periodically exports revisions
// appended since its last run as JSON-lines batches. Exports are
// incremental: a cursor object records the last archived revision ID, so a
// restarted archiver resumes where it stopped. The audit log itself is never
// modified.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/metrics"
)

const cursorKey = "cursor"

// Config contains configuration for the archiver.
type Config struct {
	// Enabled controls whether background archiving is active
	Enabled bool

	// Interval is how often to run an export (default: 1h)
	Interval time.Duration

	// BatchSize is how many revisions go into one object (default: 1000)
	BatchSize int

	// DryRun logs what would be exported without writing (default: false)
	DryRun bool
}

// Archiver exports revisions from an audit log to an ObjectStore.
//
// Thread Safety: Safe for concurrent use. Runs are serialized.
type Archiver struct {
	log     audit.Log
	store   ObjectStore
	config  Config
	metrics metrics.EngineMetrics

	runMu    sync.Mutex
	stopOnce sync.Once
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewArchiver creates an archiver. Call Start to begin background exports.
func NewArchiver(log audit.Log, store ObjectStore, config Config, m metrics.EngineMetrics) (*Archiver, error) {
	if log == nil {
		return nil, fmt.Errorf("audit log is required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}

	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 1000
	}

	return &Archiver{
		log:     log,
		store:   store,
		config:  config,
		metrics: metrics.OrNoop(m),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins background archiving. It is a no-op when disabled or
// already started.
func (a *Archiver) Start() {
	if !a.config.Enabled {
		logger.Info("Revision archiving disabled")
		return
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.started {
		return
	}
	a.started = true

	logger.Info("Starting revision archiver: interval=%s batch_size=%d dry_run=%v",
		a.config.Interval, a.config.BatchSize, a.config.DryRun)

	go a.worker()
}

// Stop stops the archiver and waits for an in-progress run to finish.
//
// Returns:
//   - error: ctx.Err() if ctx expires before shutdown completes
func (a *Archiver) Stop(ctx context.Context) error {
	a.runMu.Lock()
	started := a.started
	a.runMu.Unlock()
	if !started {
		return nil
	}

	logger.Info("Stopping revision archiver...")
	a.stopOnce.Do(func() { close(a.stopCh) })

	select {
	case <-a.doneCh:
		logger.Info("Revision archiver stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Revision archiver shutdown timeout")
		return ctx.Err()
	}
}

// RunNow runs one export immediately and blocks until it completes.
func (a *Archiver) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running revision archive (manual trigger)...")
	return a.archive(ctx)
}

func (a *Archiver) worker() {
	defer close(a.doneCh)

	ticker := time.NewTicker(a.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := a.archive(ctx)
			cancel()

			if err != nil {
				logger.Error("Revision archive failed: %v", err)
			} else {
				logger.Info("Revision archive completed: %s", stats.Summary())
			}

		case <-a.stopCh:
			return
		}
	}
}

// archive exports every revision after the cursor, one object per batch,
// advancing the cursor after each written batch.
func (a *Archiver) archive(ctx context.Context) (*Stats, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	cursor, err := a.Cursor(ctx)
	if err != nil {
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := a.log.Since(ctx, cursor, a.config.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to read revisions: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		first, last := batch[0].ID, batch[len(batch)-1].ID
		key := BatchKey(first, last)

		if a.config.DryRun {
			logger.Info("Archive: DRY RUN - would write %d revisions to %s", len(batch), key)
		} else {
			if err := a.writeBatch(ctx, key, batch); err != nil {
				stats.Failed++
				a.metrics.RecordArchive(len(batch), err)
				return stats, err
			}
			if err := a.store.PutObject(ctx, cursorKey, []byte(last)); err != nil {
				stats.Failed++
				a.metrics.RecordArchive(len(batch), err)
				return stats, fmt.Errorf("failed to save archive cursor: %w", err)
			}
			a.metrics.RecordArchive(len(batch), nil)
			logger.Debug("Archive: wrote %d revisions to %s", len(batch), key)
		}

		stats.Batches++
		stats.Revisions += uint64(len(batch))
		cursor = last

		if len(batch) < a.config.BatchSize {
			break
		}
	}

	return stats, nil
}

func (a *Archiver) writeBatch(ctx context.Context, key string, batch []*audit.Revision) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rev := range batch {
		if err := enc.Encode(rev); err != nil {
			return fmt.Errorf("failed to encode revision %s: %w", rev.ID, err)
		}
	}
	if err := a.store.PutObject(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write archive batch: %w", err)
	}
	return nil
}

// Cursor returns the ID of the last archived revision, or "" when nothing
// has been archived yet.
func (a *Archiver) Cursor(ctx context.Context) (string, error) {
	data, err := a.store.GetObject(ctx, cursorKey)
	if errors.Is(err, ErrObjectNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load archive cursor: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// BatchKey is the object key of the batch spanning revisions first..last.
func BatchKey(first, last string) string {
	return fmt.Sprintf("revisions/%s-%s.jsonl", first, last)
}

// ReadBatch decodes a JSON-lines batch written by the archiver.
func ReadBatch(data []byte) ([]*audit.Revision, error) {
	var out []*audit.Revision
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var rev audit.Revision
		if err := dec.Decode(&rev); err != nil {
			return nil, fmt.Errorf("failed to decode archived revision: %w", err)
		}
		out = append(out, &rev)
	}
	return out, nil
}

// Stats contains statistics from an archive run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time
	Batches   uint64 // Objects written (or that would be, in dry-run mode)
	Revisions uint64 // Revisions exported
	Failed    uint64 // Batches that failed to write
}

// Duration returns the total run duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf("batches=%d revisions=%d failed=%d duration=%s",
		s.Batches, s.Revisions, s.Failed, s.Duration())
}
