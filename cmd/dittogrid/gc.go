package main

import (
	"fmt"

	"github.com/marmos91/dittogrid/pkg/gc"
	"github.com/spf13/cobra"
)

func newGCCommand(c *cli) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete chunks that no file document references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, err := c.openDatabase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			config := c.cfg.GC
			config.DryRun = config.DryRun || dryRun
			if c.root != "" {
				config.Roots = []string{c.root}
			}

			collector, err := gc.NewCollector(db, config, nil)
			if err != nil {
				return err
			}

			stats, err := collector.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without deleting them")
	return cmd
}
