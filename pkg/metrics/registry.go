// Package metrics provides Prometheus metrics collection for dittotree.
//
// All metrics are optional. If the registry is not initialized, constructors
// return no-op implementations with zero overhead, so the engine runs the
// same way with or without metrics.
//
// Usage:
//
//	metrics.InitRegistry()
//	engineMetrics := metrics.NewEngineMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry. Written once by
	// InitRegistry, read by everything else.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Subsequent calls
// are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
