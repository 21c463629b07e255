package main

import (
	"context"
	"fmt"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/config"
	"github.com/marmos91/dittogrid/pkg/gridfs"
	"github.com/spf13/cobra"
)

// cli holds the state shared by every subcommand.
type cli struct {
	configPath string
	logLevel   string
	root       string

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "dittogrid",
		Short:         "Chunked file grid over memory, badger, bolt or S3",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/dittogrid/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
	root.PersistentFlags().StringVar(&c.root, "root", "", "root collection (default: grid.root_collection)")

	root.AddCommand(
		newInitCommand(c),
		newServeCommand(c),
		newPutCommand(c),
		newGetCommand(c),
		newCatCommand(c),
		newRmCommand(c),
		newLsCommand(c),
		newGCCommand(c),
	)
	return root
}

// load reads the configuration and applies it to the logger.
func (c *cli) load() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		return err
	}

	c.cfg = cfg
	return nil
}

// rootCollection returns the --root flag or the configured default.
func (c *cli) rootCollection() string {
	if c.root != "" {
		return c.root
	}
	return c.cfg.Grid.RootCollection
}

// gridConfig returns the grid defaults for the selected root.
func (c *cli) gridConfig() gridfs.Config {
	return gridfs.Config{
		Root:        c.rootCollection(),
		ChunkSize:   c.cfg.Grid.ChunkSize,
		ContentType: c.cfg.Grid.ContentType,
	}
}

// openDatabase loads the config and opens the configured chunk store.
func (c *cli) openDatabase(ctx context.Context, opts ...chunkstore.DatabaseOption) (*chunkstore.KVDatabase, error) {
	if err := c.load(); err != nil {
		return nil, err
	}

	db, err := config.CreateDatabase(ctx, &c.cfg.Store, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", c.cfg.Store.Type, err)
	}
	return db, nil
}
