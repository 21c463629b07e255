package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittogrid/pkg/gateway"
	"github.com/marmos91/dittogrid/pkg/gc"
	"github.com/spf13/viper"
)

// Config represents the complete DittoGrid configuration.
//
// This structure captures all configurable aspects of a grid process:
//   - Logging configuration
//   - Process-wide settings
//   - Chunk store backend selection and its backend-specific options
//   - Grid defaults (root collection, chunk size, content type)
//   - HTTP gateway, orphan collector and metrics server
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOGRID_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each backend defines its own Config type. The store section carries one
// map per backend and only the map matching store.type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store selects the chunk store backend
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Grid holds the defaults applied to files created through the grid
	Grid GridConfig `mapstructure:"grid" yaml:"grid"`

	// Gateway configures the HTTP gateway
	Gateway gateway.Config `mapstructure:"gateway" yaml:"gateway"`

	// GC configures the orphan chunk collector
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Metrics configures Prometheus collection and its HTTP endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// StoreConfig specifies the chunk store backend.
//
// The Type field determines which backend is used. Only the corresponding
// backend-specific section is decoded.
type StoreConfig struct {
	// Type specifies which backend to use
	// Valid values: memory, filesystem, badger, bolt, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem badger bolt s3"`

	// ChunkCacheSize is the number of chunks kept in an in-process read
	// cache (0 disables it). Only safe when no other process writes the store.
	ChunkCacheSize int `mapstructure:"chunk_cache_size" yaml:"chunk_cache_size" validate:"gte=0"`

	// Memory contains memory backend options (currently none)
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Filesystem contains directory-tree options
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// Badger contains BadgerDB options
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// Bolt contains bbolt options
	// Only used when Type = "bolt"
	Bolt map[string]any `mapstructure:"bolt" yaml:"bolt,omitempty"`

	// S3 contains S3 options
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// GridConfig holds the defaults of the file service.
type GridConfig struct {
	// RootCollection is the root collection files live in when none is given
	RootCollection string `mapstructure:"root_collection" yaml:"root_collection" validate:"required,excludes=/"`

	// ChunkSize is the chunk size of newly created files, in bytes
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size" validate:"gt=0"`

	// ContentType is stored with files that do not specify one
	ContentType string `mapstructure:"content_type" yaml:"content_type" validate:"required"`

	// Encoding is the default text encoding of read streams (empty = raw bytes)
	// Valid values: utf8, ascii, base64
	Encoding string `mapstructure:"encoding" yaml:"encoding" validate:"omitempty,oneof=utf8 ascii base64"`
}

// MetricsConfig controls Prometheus collection.
type MetricsConfig struct {
	// Enabled turns on metric collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port of the metrics server
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOGRID_*)
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
	// Example: DITTOGRID_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about, so the
	// scalar keys are bound explicitly for configs that omit them.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittogrid/config.{yaml,toml}
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
	"store.chunk_cache_size",
	"grid.root_collection",
	"grid.chunk_size",
	"grid.content_type",
	"grid.encoding",
	"gateway.enabled",
	"gateway.port",
	"gc.enabled",
	"gc.interval",
	"gc.dry_run",
	"metrics.enabled",
	"metrics.port",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
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
		return filepath.Join(xdgConfig, "dittogrid")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittogrid")
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

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
