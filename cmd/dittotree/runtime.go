package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/audit"
	"github.com/marmos91/dittotree/pkg/config"
	"github.com/marmos91/dittotree/pkg/engine"
	"github.com/marmos91/dittotree/pkg/notify"
	"github.com/marmos91/dittotree/pkg/tree"
)

// runtime holds everything a command needs, built from configuration.
type runtime struct {
	cfg      *config.Config
	engine   *engine.Engine
	log      audit.Log
	notifier *notify.Broadcaster
	metrics  *config.MetricsResult
	tracing  func(context.Context) error
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return nil, fmt.Errorf("failed to set log output: %w", err)
	}

	shutdownTracing, err := config.InitializeTracing(ctx, &cfg.Tracing)
	if err != nil {
		return nil, err
	}

	store, err := config.CreateTreeStore(ctx, &cfg.Store)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	log, err := config.CreateAuditLog(ctx, &cfg.Audit)
	if err != nil {
		_ = store.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	metricsResult := config.InitializeMetrics(cfg, store.Healthcheck)
	notifier := config.CreateNotifier(&cfg.Notify, metricsResult.Engine)

	eng, err := engine.New(engine.Config{
		Store:    store,
		Log:      log,
		Notifier: notifier,
		Metrics:  metricsResult.Engine,
	})
	if err != nil {
		_ = notifier.Close(ctx)
		_ = log.Close()
		_ = store.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	return &runtime{
		cfg:      cfg,
		engine:   eng,
		log:      log,
		notifier: notifier,
		metrics:  metricsResult,
		tracing:  shutdownTracing,
	}, nil
}

// Close drains notifications, then closes the engine and flushes traces.
func (r *runtime) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Server.ShutdownTimeout)
	defer cancel()

	return errors.Join(
		r.notifier.Close(ctx),
		r.engine.Close(),
		r.tracing(ctx),
	)
}

// withRuntime runs fn against a freshly opened runtime.
func withRuntime(ctx context.Context, fn func(*runtime) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			logger.Warn("Shutdown: %v", err)
		}
	}()
	return fn(rt)
}

// actingUser builds the user from the global flags.
func actingUser() (tree.User, error) {
	if userID == "" {
		return tree.User{}, fmt.Errorf("no acting user: pass --user")
	}

	user := tree.User{ID: tree.UserID(userID)}
	for _, g := range userGroups {
		user.Groups = append(user.Groups, tree.GroupID(g))
	}
	if asAdmin {
		user.Role = tree.RoleAdmin
	}
	return user, nil
}

func parseIDs(args ...string) ([]tree.NodeID, error) {
	ids := make([]tree.NodeID, 0, len(args))
	for _, arg := range args {
		id, err := tree.ParseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
