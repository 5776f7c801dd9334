// Command soarctl runs integration actions from a shell, the way the host
// platform would, and checks connection profiles.
package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hive-corporation/soarbridge/internal/adapter/provider"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/catalog"
	"github.com/hive-corporation/soarbridge/internal/logs"
)

func main() {
	if err := newRootCmd(&app{build: loadCatalog}).Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	logLevel   string
	noColor    bool

	catalog *catalog.Catalog
	build   func(*app) error
}

func loadCatalog(a *app) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	logger := logs.ConsoleLogger(level)

	a.catalog = catalog.New(
		provider.FromConfig(cfg, provider.SharedTransport(cfg, logger)),
		catalog.WithTimeout(cfg.GetActionTimeout()),
		catalog.WithLogger(logger),
	)
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "soarctl",
		Short:         "soarctl runs SOAR integration actions against the configured vendors.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				color.NoColor = true
			}
			if a.catalog != nil {
				return nil
			}
			return a.build(a)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default is $SOAR_CONFIG or soarbridge.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable coloured output")

	root.AddCommand(
		newListCmd(a),
		newDescribeCmd(a),
		newRunCmd(a),
		newValidateCmd(a),
	)
	return root
}
