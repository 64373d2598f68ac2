package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allforgood/datahub/internal/config"
	"github.com/allforgood/datahub/internal/logging"
)

var cfgFile string

// app bundles the services every subcommand needs. Built once in the
// root PersistentPreRunE.
type app struct {
	cfg    config.Config
	logger *zap.Logger
}

var services *app

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datahub",
		Short: "Volunteer opportunity feed ingestion tools",
		Long: `datahub converts volunteer-opportunity listings from external
providers (XML feeds, Atom/RSS, TSV exports, crawled HTML) into the
canonical feed consumed by the search index, enriching them with
geocoded locations and link validation along the way.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			services = &app{cfg: cfg, logger: logger}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if services != nil {
				services.logger.Sync() //nolint:errcheck // best-effort flush
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newPipelineCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCheckLinkCmd())
	cmd.AddCommand(newGeocodeCmd())

	return cmd
}

// Execute is the CLI entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
