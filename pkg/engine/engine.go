// Package engine is the entry point of the content-tree mutation engine.
//
// Engine wires the Tree Mutator, the Deletion Planner and Executor, and the
// Restorer around one store, audit log and notifier, and wraps every
// operation in a trace span and operation metrics.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/acl"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/deletion"
	"github.com/marmos91/dittotree/pkg/metrics"
	"github.com/marmos91/dittotree/pkg/mutator"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/restore"
	"github.com/marmos91/dittotree/pkg/tree"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dittotree.engine")

// Config holds the collaborators of an Engine. Store and Log are required.
type Config struct {
	Store    tree.Store
	Log      audit.Log
	Checker  acl.Checker
	Notifier notify.Notifier
	Metrics  metrics.EngineMetrics
	Clock    func() time.Time
}

// Engine is the content-tree mutation engine.
//
// Thread Safety: Safe for concurrent use.
type Engine struct {
	store    tree.Store
	log      audit.Log
	checker  acl.Checker
	metrics  metrics.EngineMetrics
	mutator  *mutator.Mutator
	planner  *deletion.Planner
	executor *deletion.Executor
	restorer *restore.Restorer
}

// New creates an Engine.
func New(config Config) (*Engine, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("tree store is required")
	}
	if config.Log == nil {
		return nil, fmt.Errorf("audit log is required")
	}
	if config.Checker == nil {
		config.Checker = acl.NewModeChecker()
	}

	return &Engine{
		store:   config.Store,
		log:     config.Log,
		checker: config.Checker,
		metrics: metrics.OrNoop(config.Metrics),
		mutator: mutator.New(mutator.Config{
			Store:    config.Store,
			Log:      config.Log,
			Checker:  config.Checker,
			Notifier: config.Notifier,
			Clock:    config.Clock,
		}),
		planner: deletion.NewPlanner(config.Store, config.Checker),
		executor: deletion.NewExecutor(deletion.ExecutorConfig{
			Store:    config.Store,
			Log:      config.Log,
			Checker:  config.Checker,
			Notifier: config.Notifier,
			Clock:    config.Clock,
		}),
		restorer: restore.New(restore.Config{
			Store:    config.Store,
			Log:      config.Log,
			Checker:  config.Checker,
			Notifier: config.Notifier,
			Clock:    config.Clock,
		}),
	}, nil
}

// Store returns the engine's tree store.
func (e *Engine) Store() tree.Store {
	return e.store
}

// Log returns the engine's audit log.
func (e *Engine) Log() audit.Log {
	return e.log
}

// Healthcheck verifies the tree store is operational.
func (e *Engine) Healthcheck(ctx context.Context) error {
	return e.store.Healthcheck(ctx)
}

// Close closes the store and the audit log.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.store.Close(); err != nil {
		firstErr = err
	}
	if err := e.log.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// start opens a span for operation.
func (e *Engine) start(ctx context.Context, operation string, user tree.User, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs,
		attribute.String("user.id", string(user.ID)),
		attribute.Int("user.role", int(user.Role)),
	)
	ctx, span := tracer.Start(ctx, "engine."+operation, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

// finish records the operation's metrics and closes its span.
func (e *Engine) finish(span trace.Span, operation string, start time.Time, err error) {
	defer span.End()

	e.metrics.RecordOperation(operation, time.Since(start), err)
	if err != nil {
		if code, ok := tree.CodeOf(err); ok {
			span.SetAttributes(attribute.String("error.code", code.String()))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("%s failed: %v", operation, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// recordOutcomes counts a composite result's outcomes.
func (e *Engine) recordOutcomes(span trace.Span, operation string, result *tree.CompositeResult) {
	if result == nil {
		return
	}
	for _, o := range result.Outcomes() {
		e.metrics.RecordOutcome(operation, o.Kind.String())
	}
	span.SetAttributes(
		attribute.Int("result.nodes", result.Len()),
		attribute.Bool("result.has_failures", result.HasFailures()),
	)
}

func nodeAttr(key string, id tree.NodeID) attribute.KeyValue {
	return attribute.String(key, id.String())
}
