package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The selected backend section must carry its required options
	switch cfg.Store.Type {
	case "filesystem":
		if !hasOption(cfg.Store.Filesystem, "path") {
			return fmt.Errorf("store.filesystem: path is required")
		}
	case "badger":
		if !hasOption(cfg.Store.Badger, "path") && cfg.Store.Badger["in_memory"] != true {
			return fmt.Errorf("store.badger: path is required unless in_memory is set")
		}
	case "bolt":
		if !hasOption(cfg.Store.Bolt, "path") {
			return fmt.Errorf("store.bolt: path is required")
		}
	case "s3":
		for _, key := range []string{"bucket", "region"} {
			if !hasOption(cfg.Store.S3, key) {
				return fmt.Errorf("store.s3: %s is required", key)
			}
		}
	}

	// Gateway and metrics cannot share a port
	if cfg.Gateway.Enabled && cfg.Metrics.Enabled && cfg.Gateway.Port == cfg.Metrics.Port {
		return fmt.Errorf("gateway.port and metrics.port must differ (both %d)", cfg.Gateway.Port)
	}

	if cfg.GC.Enabled && cfg.GC.Interval <= 0 {
		return fmt.Errorf("gc: interval must be positive when enabled")
	}

	return nil
}

// hasOption reports whether options holds a non-empty value for key.
func hasOption(options map[string]any, key string) bool {
	v, ok := options[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
