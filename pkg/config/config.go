package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete dittotree configuration.
//
// This structure captures all configurable aspects of the engine:
//   - Logging configuration
//   - Tree store selection and configuration (store-specific)
//   - Audit log selection, configuration and archiving
//   - Notification fan-out
//   - Metrics and tracing
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOTREE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// Store Configuration Pattern:
// Each backend defines its own configuration type. The Config struct carries
// type-specific sections (e.g., store.badger, audit.sqlite) and only the
// section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store specifies the tree store type and type-specific configuration
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Audit specifies the revision log and its archive
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Notify controls owner notifications
	Notify NotifyConfig `mapstructure:"notify" yaml:"notify"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Tracing controls OpenTelemetry span export
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// StoreConfig specifies tree store configuration.
type StoreConfig struct {
	// Type specifies which tree store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// AuditConfig specifies revision log configuration.
type AuditConfig struct {
	// Type specifies which log implementation to use
	// Valid values: memory, badger, sqlite
	Type string `mapstructure:"type" validate:"required,oneof=memory badger sqlite" yaml:"type"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// SQLite contains SQLite-specific configuration
	// Only used when Type = "sqlite"
	SQLite map[string]any `mapstructure:"sqlite" yaml:"sqlite"`

	// Archive exports revisions to object storage in the background
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`
}

// ArchiveConfig controls the revision archiver.
type ArchiveConfig struct {
	// Enabled starts the background archiver
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Type specifies the object store receiving batches
	// Valid values: s3, memory
	Type string `mapstructure:"type" validate:"omitempty,oneof=s3 memory" yaml:"type"`

	// Interval is how often new revisions are exported
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`

	// BatchSize is the maximum number of revisions per object
	BatchSize int `mapstructure:"batch_size" validate:"gte=0" yaml:"batch_size"`

	// DryRun logs exports without writing objects
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// NotifyConfig controls owner notifications.
type NotifyConfig struct {
	// QueueSize bounds pending notifications
	QueueSize int `mapstructure:"queue_size" validate:"gte=0" yaml:"queue_size"`

	// DeliveryTimeout bounds a single delivery
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"gte=0" yaml:"delivery_timeout"`

	// RateLimit throttles the log channel. Zero disables throttling.
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig is a token bucket.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             uint `mapstructure:"burst" yaml:"burst"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the listen port of the metrics server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled installs a tracer provider
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Exporter selects the span exporter
	// Valid values: stdout, otlp
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=stdout otlp" yaml:"exporter"`

	// OTLPEndpoint is the OTLP gRPC receiver (host:port)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`

	// OTLPInsecure disables TLS for the OTLP connection
	OTLPInsecure bool `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`

	// ServiceName identifies this process in traces
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOTREE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOTREE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOTREE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Scalar keys must be known to viper for AutomaticEnv to override them
	// when the file does not set them.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"store.type",
	"audit.type",
	"audit.archive.enabled",
	"audit.archive.type",
	"audit.archive.interval",
	"audit.archive.batch_size",
	"audit.archive.dry_run",
	"notify.queue_size",
	"notify.delivery_timeout",
	"metrics.enabled",
	"metrics.port",
	"tracing.enabled",
	"tracing.exporter",
	"tracing.otlp_endpoint",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated like no file.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittotree")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittotree")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
