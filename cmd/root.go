// Package cmd defines the CLI commands for the harvester executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/config"
	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/logging"
	sourcememory "github.com/tgstats/channel-harvester/internal/source/memory"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Queue-driven channel scraping pipeline",
		Long: `harvester consumes scrape tasks from a durable queue, resolves channel
handles through a persisted peer cache, and ingests channel metadata,
similar-channel recommendations, and historical posts into Postgres.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	cmd.AddCommand(newWorkCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// buildSource selects the channel data source implementation. A live
// platform session would slot in here as another provider.
func buildSource(cfg config.Config) (harvester.Source, error) {
	switch cfg.Source.Provider {
	case "memory":
		if cfg.Source.Fixture == "" {
			return nil, fmt.Errorf("source.fixture is required for the memory provider")
		}
		src, err := sourcememory.New(cfg.Source.Fixture)
		if err != nil {
			return nil, fmt.Errorf("load source fixture: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source provider %q", cfg.Source.Provider)
	}
}
