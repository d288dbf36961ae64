package config

import (
	"context"

	"github.com/marmos91/dittotree/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Engine is the engine metrics collector (never nil, noop if disabled)
	Engine metrics.EngineMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed engine metrics
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics (zero overhead)
//
// Parameters:
//   - cfg: The complete configuration
//   - health: Backs /healthz (may be nil)
func InitializeMetrics(cfg *Config, health func(ctx context.Context) error) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Engine: metrics.NewNoopEngineMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server: metrics.NewServer(metrics.ServerConfig{
			Port:   cfg.Metrics.Port,
			Health: health,
		}),
		Engine: metrics.NewEngineMetrics(),
	}
}
