// Package cli implements the featurectl command line.
package cli

import (
	"context"
	"fmt"

	"featurekit/internal/config"
	"featurekit/internal/engine"

	"github.com/spf13/cobra"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	cfgFile  string
	logLevel string
	settings *config.Config
}

// NewRootCommand builds the featurectl command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "featurectl",
		Short: "Profile tables and run feature engineering pipelines",
		Long: `featurectl profiles tabular data files, mines categorical values associated
with a binary target and runs YAML-declared feature pipelines.

Examples:
  featurectl profile data.csv --examples 5
  featurectl mine data.csv --target churned --min-mean-target 0.5
  featurectl run --pipeline features.yaml data.csv --out features.arrow`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&g.cfgFile, "config", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "disabled", "log level (debug, info, warn, error, disabled)")

	root.AddCommand(
		newProfileCommand(g),
		newMineCommand(g),
		newRunCommand(g),
		newServeCommand(g),
	)
	return root
}

// Execute runs featurectl with the process arguments.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// init loads settings and configures logging. An explicit --log-level wins.
// Without one the config's level applies when a config file was given or the
// command carries the logFromConfig annotation; the CLI is quiet otherwise.
func (g *globals) init(cmd *cobra.Command) error {
	cfg, err := config.Load(g.cfgFile)
	if err != nil {
		return err
	}
	g.settings = cfg

	level := g.logLevel
	if !cmd.Flags().Changed("log-level") && (g.cfgFile != "" || cmd.Annotations[logFromConfig] != "") {
		level = cfg.Log.Level
	}
	config.InitLogging(level, cfg.Log.Console)
	return nil
}

// loadTable reads path in the given format, defaulting to the configured
// dataset format.
func (g *globals) loadTable(path, format, delimiter string) (*engine.Table, error) {
	if format == "" && g.settings != nil {
		format = g.settings.Dataset.Format
	}
	f, err := engine.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	var opts engine.CSVOptions
	if g.settings != nil {
		opts = g.settings.Dataset.CSVOptions()
	}
	if delimiter != "" {
		r := []rune(delimiter)
		if len(r) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
		}
		opts.Comma = r[0]
	}
	return engine.Load(path, f, opts)
}
