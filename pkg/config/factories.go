package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/chunkstore/badger"
	"github.com/marmos91/dittogrid/pkg/chunkstore/bolt"
	chunkFS "github.com/marmos91/dittogrid/pkg/chunkstore/fs"
	"github.com/marmos91/dittogrid/pkg/chunkstore/memory"
	chunkS3 "github.com/marmos91/dittogrid/pkg/chunkstore/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateDatabase creates the chunk database selected by the store section.
//
// The backend is built by CreateKV and wrapped in a chunkstore.KVDatabase.
// A configured chunk cache is applied first; extra options (metrics, clock)
// are passed through to the database.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Store configuration
//   - opts: Database options
//
// Returns:
//   - *chunkstore.KVDatabase: Database ready for Connect
//   - error: Configuration or initialization error
func CreateDatabase(ctx context.Context, cfg *StoreConfig, opts ...chunkstore.DatabaseOption) (*chunkstore.KVDatabase, error) {
	kv, err := CreateKV(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]chunkstore.DatabaseOption{chunkstore.WithChunkCache(cfg.ChunkCacheSize)}, opts...)
	return chunkstore.NewDatabase(kv, opts...), nil
}

// CreateKV creates a key/value backend based on configuration.
//
// This factory function uses the Type field to determine which backend
// to create, then decodes the type-specific configuration from the
// corresponding map and passes it to the backend's constructor.
//
// Supported types:
//   - "memory": Uses pkg/chunkstore/memory (ephemeral)
//   - "filesystem": Uses pkg/chunkstore/fs (one file per key, persistent)
//   - "badger": Uses pkg/chunkstore/badger (BadgerDB, persistent)
//   - "bolt": Uses pkg/chunkstore/bolt (bbolt single file, persistent)
//   - "s3": Uses pkg/chunkstore/s3 (Amazon S3 or compatible storage)
func CreateKV(ctx context.Context, cfg *StoreConfig) (chunkstore.KV, error) {
	switch cfg.Type {
	case "memory":
		return createMemoryKV(ctx)
	case "filesystem":
		return createFilesystemKV(ctx, cfg.Filesystem)
	case "badger":
		return createBadgerKV(ctx, cfg.Badger)
	case "bolt":
		return createBoltKV(ctx, cfg.Bolt)
	case "s3":
		return createS3KV(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store type: %q (supported: memory, filesystem, badger, bolt, s3)", cfg.Type)
	}
}

// decodeOptions decodes a backend section into its Config type and runs the
// backend's validation tags.
func decodeOptions(backend string, options map[string]any, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("failed to decode %s store config: %w", backend, err)
	}

	if err := validate.Struct(result); err != nil {
		return fmt.Errorf("%s store: %w", backend, formatValidationError(err))
	}

	return nil
}

// createMemoryKV creates an in-memory backend.
func createMemoryKV(ctx context.Context) (chunkstore.KV, error) {
	// Check context before creating store
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info("Memory chunk store initialized (contents are lost on exit)")
	return memory.New(), nil
}

// createFilesystemKV creates a directory-tree backend.
func createFilesystemKV(ctx context.Context, options map[string]any) (chunkstore.KV, error) {
	var storeCfg chunkFS.Config
	if err := decodeOptions("filesystem", options, &storeCfg); err != nil {
		return nil, err
	}

	store, err := chunkFS.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem chunk store: %w", err)
	}

	logger.Info("Filesystem chunk store initialized: path=%s", storeCfg.BasePath)
	return store, nil
}

// createBadgerKV creates a BadgerDB-based persistent backend.
func createBadgerKV(ctx context.Context, options map[string]any) (chunkstore.KV, error) {
	var storeCfg badger.Config
	if err := decodeOptions("badger", options, &storeCfg); err != nil {
		return nil, err
	}

	store, err := badger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger chunk store: %w", err)
	}

	logger.Info("Badger chunk store initialized: path=%s in_memory=%v", storeCfg.Path, storeCfg.InMemory)
	return store, nil
}

// createBoltKV creates a bbolt-based persistent backend.
func createBoltKV(ctx context.Context, options map[string]any) (chunkstore.KV, error) {
	// Check context before creating store
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var storeCfg bolt.Config
	if err := decodeOptions("bolt", options, &storeCfg); err != nil {
		return nil, err
	}

	store, err := bolt.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bolt chunk store: %w", err)
	}

	logger.Info("Bolt chunk store initialized: path=%s", storeCfg.Path)
	return store, nil
}

// createS3KV creates an S3-based backend.
func createS3KV(ctx context.Context, options map[string]any) (chunkstore.KV, error) {
	var storeCfg chunkS3.Config
	if err := decodeOptions("s3", options, &storeCfg); err != nil {
		return nil, err
	}

	client, err := chunkS3.NewClient(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := chunkS3.New(ctx, client, storeCfg.Bucket, storeCfg.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 chunk store: %w", err)
	}

	logger.Info("S3 chunk store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}
