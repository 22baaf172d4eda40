package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/config"
	"github.com/tgstats/channel-harvester/internal/consumer"
	"github.com/tgstats/channel-harvester/internal/floodguard"
	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/ledger"
	"github.com/tgstats/channel-harvester/internal/metrics"
	"github.com/tgstats/channel-harvester/internal/peers"
	"github.com/tgstats/channel-harvester/internal/queue"
	"github.com/tgstats/channel-harvester/internal/scraper"
	"github.com/tgstats/channel-harvester/internal/store/postgres"

	systemclock "github.com/tgstats/channel-harvester/internal/clock/system"
)

func newWorkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run one worker consuming scrape tasks from the queue",
		Long: `Starts a single worker process. Each worker runs one sequential task
pipeline (resolve, metadata, posts) against its own scraper identity;
run more workers to scale throughput.`,
		RunE: runWorkCommand,
	}
}

func runWorkCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:               cfg.DB.DSN,
		MaxConns:          cfg.DB.MaxConns,
		MinConns:          cfg.DB.MinConns,
		MaxConnLifetime:   cfg.ConnLifetime(),
		HealthCheckPeriod: cfg.HealthCheckPeriod(),
	})
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	broker, err := queue.DialAMQP(queue.AMQPConfig{
		URL:   cfg.Queue.URL,
		Queue: cfg.Queue.Queue,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer func() {
		if cerr := broker.Close(); cerr != nil {
			logger.Warn("close queue failed", zap.Error(cerr))
		}
	}()

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	c := buildConsumer(cfg, src, store, broker, logger)

	logger.Info("worker started",
		zap.Int64("scraper_id", cfg.Worker.ScraperID),
		zap.String("queue", cfg.Queue.Queue),
	)
	c.Run(ctx)
	logger.Info("worker stopped")
	return nil
}

func buildConsumer(
	cfg config.Config,
	src harvester.Source,
	store *postgres.Store,
	tasks queue.Consumer,
	logger *zap.Logger,
) *consumer.Consumer {
	clock := systemclock.New()
	guard := floodguard.New(clock, cfg.ResolveSpacing(), logger)
	resolver := peers.New(store, src, guard, cfg.Worker.ScraperID, logger)
	metadata := scraper.NewMetadataScraper(src, store, logger)
	posts := scraper.NewPostScraper(src, store, ledger.New(store, logger), clock,
		scraper.PostScraperConfig{
			BatchSize: cfg.Scrape.BatchSize,
			MaxPosts:  cfg.Scrape.MaxPosts,
		}, logger)
	return consumer.New(tasks, resolver, metadata, posts, logger)
}
