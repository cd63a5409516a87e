package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tinytelemetry/canopy/internal/tui"
)

func newTUICmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal dashboard",
		Long: `Opens the terminal dashboard on the current template. Keys 1-6 toggle chart
kinds, tab switches to the template browser, r refreshes, p pauses polling.
Logs are written to ~/.local/state/canopy/canopy.log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.engine.StartRefresh(ctx); err != nil {
				return fmt.Errorf("failed to start refresh: %w", err)
			}
			watchConfig(c.v, rt.engine, c.logger)

			if err := tui.Run(ctx, rt.engine); err != nil {
				if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
					return fmt.Errorf("TUI requires a real terminal")
				}
				return fmt.Errorf("error running TUI: %w", err)
			}
			return nil
		},
	}
}
