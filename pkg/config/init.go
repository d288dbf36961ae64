package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sectionComments annotate the top-level keys of a generated config file.
var sectionComments = map[string]string{
	"logging": "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"server":  "Process settings",
	"store":   "Tree store: memory or badger",
	"audit":   "Revision log: memory, badger or sqlite. archive exports revisions to S3 when enabled.",
	"notify":  "Owner notifications. rate_limit.requests_per_second = 0 disables throttling.",
	"metrics": "Prometheus endpoint (/metrics, /healthz)",
	"tracing": "OpenTelemetry spans: stdout or otlp",
}

const header = `dittotree configuration
Every key can be overridden with an environment variable:
DITTOTREE_<SECTION>_<KEY>, e.g. DITTOTREE_LOGGING_LEVEL=DEBUG`

// GenerateDefault renders the default configuration as commented YAML.
func GenerateDefault() ([]byte, error) {
	return generateYAMLWithComments(GetDefaultConfig())
}

// generateYAMLWithComments encodes cfg and attaches a comment to each section.
func generateYAMLWithComments(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("unexpected YAML node kind %d", root.Kind)
	}

	root.HeadComment = header
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	data, err := yaml.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// InitConfig writes the default configuration to the default location.
//
// Returns:
//   - string: Path of the written file
//   - error: Error if the file exists and force is false
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	data, err := GenerateDefault()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
