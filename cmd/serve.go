package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/api"
	"github.com/tgstats/channel-harvester/internal/metrics"
	"github.com/tgstats/channel-harvester/internal/queue"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the task submission API",
		Long: `Starts the HTTP endpoint that validates scrape requests and enqueues
one task per channel handle onto the durable queue. Scraping itself
happens in worker processes.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(broker, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.Int("port", cfg.Server.Port))
		if serveErr := server.ListenAndServe(); !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	logger.Info("api stopped")
	return nil
}
