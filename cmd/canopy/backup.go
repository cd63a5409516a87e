package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tinytelemetry/canopy/internal/backup"
	"github.com/tinytelemetry/canopy/internal/scheduler"
)

func newBackupCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the template database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Take one snapshot now (and upload it when a bucket is configured)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, _, err := openRepository(c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			cfg := c.cfg.Backup
			cfg.Enabled = true
			sched := scheduler.New(c.logger)
			defer sched.Close()

			m, err := backup.NewManager(store, cfg, sched, c.logger)
			if err != nil {
				return err
			}
			if err := m.RunOnce(cmd.Context()); err != nil {
				return err
			}
			names, err := backup.List(cfg.LocalDir)
			if err != nil {
				return err
			}
			if len(names) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", names[0])
			}
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List local snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := backup.List(c.cfg.Backup.LocalDir)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.AddCommand(run, list)
	return cmd
}
