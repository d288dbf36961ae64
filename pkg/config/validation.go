package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittotree/pkg/audit/archive"
	"github.com/mitchellh/mapstructure"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that can't be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Store.Type == "badger" && stringOption(cfg.Store.Badger, "db_path") == "" && !boolOption(cfg.Store.Badger, "in_memory") {
		return fmt.Errorf("store.badger: db_path is required")
	}

	switch cfg.Audit.Type {
	case "badger":
		if stringOption(cfg.Audit.Badger, "db_path") == "" && !boolOption(cfg.Audit.Badger, "in_memory") {
			return fmt.Errorf("audit.badger: db_path is required")
		}
	case "sqlite":
		if stringOption(cfg.Audit.SQLite, "path") == "" {
			return fmt.Errorf("audit.sqlite: path is required")
		}
	}

	archiveCfg := cfg.Audit.Archive
	if archiveCfg.Enabled {
		if archiveCfg.Type == "" {
			return fmt.Errorf("audit.archive: type is required when archiving is enabled")
		}
		if archiveCfg.Type == "s3" {
			s3Cfg, err := decodeS3Config(archiveCfg.S3)
			if err != nil {
				return err
			}
			if err := validate.Struct(s3Cfg); err != nil {
				return fmt.Errorf("audit.archive.s3: %w", formatValidationError(err))
			}
		}
	}

	if cfg.Notify.RateLimit.RequestsPerSecond > 0 && cfg.Notify.RateLimit.Burst == 0 {
		return fmt.Errorf("notify.rate_limit: burst must be positive when requests_per_second is set")
	}

	return nil
}

// decodeS3Config decodes the audit.archive.s3 section.
func decodeS3Config(options map[string]any) (archive.S3Config, error) {
	var s3Cfg archive.S3Config
	if err := mapstructure.Decode(options, &s3Cfg); err != nil {
		return s3Cfg, fmt.Errorf("invalid audit.archive.s3 config: %w", err)
	}
	return s3Cfg, nil
}

func stringOption(options map[string]any, key string) string {
	s, _ := options[key].(string)
	return s
}

func boolOption(options map[string]any, key string) bool {
	b, _ := options[key].(bool)
	return b
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
