package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/gc"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by backend constructors
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyGridDefaults(&cfg.Grid)
	cfg.Gateway.ApplyDefaults()
	applyGCDefaults(&cfg.GC, cfg.Grid.RootCollection)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults selects the memory backend and fills the options of the
// persistent backends so generated config files document them.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Bolt == nil {
		cfg.Bolt = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join(getDataDir(), "chunks")
	}
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = filepath.Join(getDataDir(), "badger")
	}
	if _, ok := cfg.Bolt["path"]; !ok {
		cfg.Bolt["path"] = filepath.Join(getDataDir(), "grid.db")
	}
}

// applyGridDefaults sets the defaults of files created through the grid.
func applyGridDefaults(cfg *GridConfig) {
	if cfg.RootCollection == "" {
		cfg.RootCollection = chunkstore.DefaultRoot
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunkstore.DefaultChunkSize
	}
	if cfg.ContentType == "" {
		cfg.ContentType = chunkstore.DefaultContentType
	}
	cfg.Encoding = strings.ToLower(cfg.Encoding)
}

// applyGCDefaults sets collector defaults. Without explicit roots the
// collector sweeps the grid's root collection.
func applyGCDefaults(cfg *gc.Config, root string) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if len(cfg.Roots) == 0 {
		cfg.Roots = []string{root}
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// getDataDir returns the directory persistent backends default to.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share, or falls back to the
// current directory if the home directory cannot be determined.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "dittogrid")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "dittogrid")
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
