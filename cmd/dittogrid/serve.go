package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/config"
	"github.com/marmos91/dittogrid/pkg/gateway"
	"github.com/marmos91/dittogrid/pkg/gc"
	"github.com/marmos91/dittogrid/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway, orphan collector and metrics server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

// serve runs every enabled component until ctx is cancelled or one fails.
func (c *cli) serve(ctx context.Context) error {
	if err := c.load(); err != nil {
		return err
	}
	cfg := c.cfg

	if !cfg.Gateway.Enabled && !cfg.GC.Enabled && !cfg.Metrics.Enabled {
		return errors.New("nothing to serve: enable gateway, gc or metrics")
	}

	m := config.InitializeMetrics(cfg)

	db, err := config.CreateDatabase(ctx, &cfg.Store, m.DatabaseOptions()...)
	if err != nil {
		return err
	}

	logger.Info("DittoGrid starting: store=%s root=%s chunk_size=%d",
		cfg.Store.Type, cfg.Grid.RootCollection, cfg.Grid.ChunkSize)

	srv := server.New(db, cfg.Server.ShutdownTimeout)

	if m.Server != nil {
		if err := srv.AddService(m.Server); err != nil {
			_ = db.Close()
			return err
		}
	}

	if cfg.Gateway.Enabled {
		grid := c.gridConfig()
		grid.Metrics = m.Queue
		gw := gateway.New(db, cfg.Gateway, gateway.Options{
			Grid:    grid,
			Streams: m.Streams,
			Metrics: m.GatewayMetrics,
		})
		if err := srv.AddService(gw); err != nil {
			_ = db.Close()
			return err
		}
	}

	if cfg.GC.Enabled {
		collector, err := gc.NewCollector(db, cfg.GC, m.GC)
		if err != nil {
			_ = db.Close()
			return err
		}
		if err := srv.AddService(collector); err != nil {
			_ = db.Close()
			return err
		}
	}

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
