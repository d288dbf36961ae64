package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittotree/internal/logger"
	"github.com/marmos91/dittotree/pkg/config"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var archiveOnce bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the revision archiver and metrics server until interrupted",
		Long: `Run the background services configured for this tree:
the revision archiver (audit.archive) and the metrics server (metrics).

Examples:
  dittotree serve                  # Run until SIGINT/SIGTERM
  dittotree serve --archive-once   # Export pending revisions and exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(rt *runtime) error {
				return serve(cmd.Context(), rt, archiveOnce)
			})
		},
	}

	cmd.Flags().BoolVar(&archiveOnce, "archive-once", false, "run one archive export and exit")
	return cmd
}

func serve(parent context.Context, rt *runtime, archiveOnce bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	archiver, err := config.CreateArchiver(ctx, &rt.cfg.Audit.Archive, rt.log, rt.metrics.Engine)
	if err != nil {
		return err
	}

	if archiveOnce {
		if archiver == nil {
			return fmt.Errorf("archiving is disabled in the configuration")
		}
		stats, err := archiver.RunNow(ctx)
		if err != nil {
			return err
		}
		logger.Info("Archive: %s", stats.Summary())
		return nil
	}

	if archiver != nil {
		archiver.Start()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
			defer stopCancel()
			if err := archiver.Stop(stopCtx); err != nil {
				logger.Warn("Archive: stop: %v", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	if rt.metrics.Server != nil {
		go func() {
			serverErr <- rt.metrics.Server.Start(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("dittotree is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Shutting down...")
		cancel()
		if rt.metrics.Server != nil {
			return <-serverErr
		}
		return nil
	case err := <-serverErr:
		return err
	}
}
