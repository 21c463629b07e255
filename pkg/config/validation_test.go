package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_TagRules(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		tag    string
	}{
		{"invalid log level", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"zero shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }, "required"},
		{"unknown store type", func(c *Config) { c.Store.Type = "postgres" }, "oneof"},
		{"root with slash", func(c *Config) { c.Grid.RootCollection = "a/b" }, "excludes"},
		{"negative chunk size", func(c *Config) { c.Grid.ChunkSize = -1 }, "gt"},
		{"unknown encoding", func(c *Config) { c.Grid.Encoding = "latin1" }, "oneof"},
		{"gateway port out of range", func(c *Config) { c.Gateway.Port = 70000 }, "max"},
		{"negative rate", func(c *Config) { c.Gateway.RateLimit.RequestsPerSecond = -1 }, "gte"},
		{"negative gc interval", func(c *Config) { c.GC.Interval = -time.Second }, "gte"},
		{"negative chunk cache", func(c *Config) { c.Store.ChunkCacheSize = -1 }, "gte"},
		{"empty gc root", func(c *Config) { c.GC.Roots = []string{""} }, "required"},
		{"metrics port out of range", func(c *Config) { c.Metrics.Port = 70000 }, "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), "'"+tt.tag+"'") {
				t.Errorf("Expected %q validation error, got: %v", tt.tag, err)
			}
		})
	}
}

func TestValidate_BackendOptions(t *testing.T) {
	tests := []struct {
		name    string
		store   StoreConfig
		wantErr string
	}{
		{"badger without path", StoreConfig{Type: "badger", Badger: map[string]any{}}, "store.badger"},
		{"badger in memory", StoreConfig{Type: "badger", Badger: map[string]any{"in_memory": true}}, ""},
		{"filesystem without path", StoreConfig{Type: "filesystem"}, "store.filesystem"},
		{"bolt with empty path", StoreConfig{Type: "bolt", Bolt: map[string]any{"path": ""}}, "store.bolt"},
		{"bolt with path", StoreConfig{Type: "bolt", Bolt: map[string]any{"path": "/tmp/grid.db"}}, ""},
		{"s3 without region", StoreConfig{Type: "s3", S3: map[string]any{"bucket": "grid"}}, "region"},
		{"s3 complete", StoreConfig{Type: "s3", S3: map[string]any{"bucket": "grid", "region": "eu-west-1"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			cfg.Store = tt.store

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Expected valid config, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_PortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateway.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = cfg.Gateway.Port

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("Expected port conflict error, got: %v", err)
	}

	// A disabled gateway does not bind its port
	cfg.Gateway.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected no conflict with disabled gateway, got: %v", err)
	}
}

func TestValidate_EnabledGCNeedsInterval(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.GC.Enabled = true
	cfg.GC.Interval = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for enabled gc without interval")
	}
}
