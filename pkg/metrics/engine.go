package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics provides observability for content-tree operations.
//
// Pass nil where a component accepts EngineMetrics to get the no-op
// implementation.
type EngineMetrics interface {
	// RecordOperation records a completed engine operation.
	//
	// Parameters:
	//   - operation: Operation name (e.g., "add_child", "move", "execute_deletion")
	//   - duration: Time taken
	//   - err: Error if the operation failed, nil on success
	RecordOperation(operation string, duration time.Duration, err error)

	// RecordOutcome counts one per-node outcome of a batch operation.
	//
	// Parameters:
	//   - operation: Batch operation name (e.g., "execute_deletion", "place")
	//   - outcome: Outcome kind (e.g., "deleted", "unshared", "failed")
	RecordOutcome(operation string, outcome string)

	// ObservePlanSize records the number of nodes in a deletion plan.
	ObservePlanSize(nodes int)

	// RecordNotification counts a notification delivery attempt.
	//
	// Parameters:
	//   - channel: Channel name
	//   - status: "delivered", "failed" or "dropped"
	RecordNotification(channel string, status string)

	// RecordArchive records one archive batch.
	//
	// Parameters:
	//   - revisions: Number of revisions exported
	//   - err: Error if the batch failed
	RecordArchive(revisions int, err error)
}

// engineMetrics is the Prometheus implementation of EngineMetrics.
type engineMetrics struct {
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	outcomesTotal      *prometheus.CounterVec
	planSize           prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
	archivedTotal      prometheus.Counter
	archiveBatches     *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineInstance EngineMetrics
)

// NewEngineMetrics returns the Prometheus-backed EngineMetrics, or a no-op
// implementation when metrics are not enabled.
//
// Collectors are registered once per process; later calls return the same
// instance.
func NewEngineMetrics() EngineMetrics {
	if !IsEnabled() {
		return &noopEngineMetrics{}
	}

	engineOnce.Do(func() {
		reg := GetRegistry()

		engineInstance = &engineMetrics{
			operationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittotree_operations_total",
					Help: "Total number of content-tree operations by operation and status",
				},
				[]string{"operation", "status"},
			),
			operationDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Name: "dittotree_operation_duration_seconds",
					Help: "Duration of content-tree operations in seconds",
					Buckets: []float64{
						0.0005, // 500µs
						0.001,  // 1ms
						0.005,  // 5ms
						0.01,   // 10ms
						0.05,   // 50ms
						0.1,    // 100ms
						0.5,    // 500ms
						1.0,    // 1s
						5.0,    // 5s
						30.0,   // 30s (large deletions)
					},
				},
				[]string{"operation"},
			),
			outcomesTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittotree_node_outcomes_total",
					Help: "Per-node outcomes of batch operations",
				},
				[]string{"operation", "outcome"},
			),
			planSize: promauto.With(reg).NewHistogram(
				prometheus.HistogramOpts{
					Name:    "dittotree_deletion_plan_nodes",
					Help:    "Number of nodes in computed deletion plans",
					Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 .. 16384
				},
			),
			notificationsTotal: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittotree_notifications_total",
					Help: "Notification delivery attempts by channel and status",
				},
				[]string{"channel", "status"},
			),
			archivedTotal: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Name: "dittotree_archived_revisions_total",
					Help: "Total number of revisions exported to the archive",
				},
			),
			archiveBatches: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Name: "dittotree_archive_batches_total",
					Help: "Archive batches by status",
				},
				[]string{"status"},
			),
		}
	})

	return engineInstance
}

func (m *engineMetrics) RecordOperation(operation string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *engineMetrics) RecordOutcome(operation string, outcome string) {
	m.outcomesTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *engineMetrics) ObservePlanSize(nodes int) {
	m.planSize.Observe(float64(nodes))
}

func (m *engineMetrics) RecordNotification(channel string, status string) {
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *engineMetrics) RecordArchive(revisions int, err error) {
	m.archiveBatches.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.archivedTotal.Add(float64(revisions))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// noopEngineMetrics is a no-op implementation of EngineMetrics.
type noopEngineMetrics struct{}

func (noopEngineMetrics) RecordOperation(operation string, duration time.Duration, err error) {}
func (noopEngineMetrics) RecordOutcome(operation string, outcome string)                     {}
func (noopEngineMetrics) ObservePlanSize(nodes int)                                          {}
func (noopEngineMetrics) RecordNotification(channel string, status string)                   {}
func (noopEngineMetrics) RecordArchive(revisions int, err error)                             {}

// NewNoopEngineMetrics returns the no-op implementation.
func NewNoopEngineMetrics() EngineMetrics {
	return &noopEngineMetrics{}
}

// OrNoop returns m, or the no-op implementation when m is nil.
func OrNoop(m EngineMetrics) EngineMetrics {
	if m == nil {
		return &noopEngineMetrics{}
	}
	return m
}
