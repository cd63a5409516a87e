package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// cli holds state shared by every subcommand once flags are parsed.
type cli struct {
	configPath string
	cfg        appConfig
	v          *viper.Viper
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "canopy",
		Short: "Canopy - dashboard templates and live chart refresh",
		Long: `Canopy stores dashboard templates, remembers which chart kinds are visible,
keeps every chart image fresh by polling the chart service, and resolves the
selected template into grid, flex or free-form layout geometry.

Run "canopy serve" for the headless engine with its HTTP API, or "canopy tui"
for the terminal dashboard.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			c.teardown()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default is $HOME/.config/canopy/config.yml)")
	pf.String("db-path", "", "DuckDB template database (default is $HOME/.local/share/canopy/canopy.duckdb)")
	pf.String("log-level", defaultLogLevel, "log level: debug, info, warn or error")
	pf.String("log-format", defaultLogFormat, "log encoding: json or console")

	root.AddCommand(
		newServeCmd(c),
		newTUICmd(c),
		newTemplatesCmd(c),
		newBackupCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}
	cfg, v, err := loadConfig(c.configPath, cmd.Root().PersistentFlags())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	c.cfg, c.v = cfg, v

	// The TUI owns the terminal, so its logs go to a file.
	logFile := ""
	if cmd.Name() == "tui" {
		logFile, err = runtimeLogPath()
		if err != nil {
			return err
		}
	}
	c.logger, err = newLogger(cfg.LogLevel, cfg.LogFormat, logFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func (c *cli) teardown() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
}
