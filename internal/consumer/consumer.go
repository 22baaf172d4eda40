// Package consumer implements the task-processing loop: it pulls scrape
// tasks from the durable queue, drives the resolve/metadata/posts pipeline,
// and maps the outcome to queue acknowledgment.
package consumer

import (
	"context"

	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/metrics"
	"github.com/tgstats/channel-harvester/internal/peers"
	"github.com/tgstats/channel-harvester/internal/queue"
	"github.com/tgstats/channel-harvester/internal/scraper"
)

// Consumer processes one task at a time. The source session and the flood
// guard's cooldown state are not safe for concurrent use by one identity,
// so throughput scales by running more workers, never by parallelism here.
type Consumer struct {
	tasks    queue.Consumer
	resolver *peers.Resolver
	metadata *scraper.MetadataScraper
	posts    *scraper.PostScraper
	logger   *zap.Logger
}

// New constructs a Consumer.
func New(
	tasks queue.Consumer,
	resolver *peers.Resolver,
	metadata *scraper.MetadataScraper,
	posts *scraper.PostScraper,
	logger *zap.Logger,
) *Consumer {
	return &Consumer{
		tasks:    tasks,
		resolver: resolver,
		metadata: metadata,
		posts:    posts,
		logger:   logger,
	}
}

// Run blocks, consuming tasks until the context finishes.
func (c *Consumer) Run(ctx context.Context) {
	for {
		delivery, err := c.tasks.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("queue receive failed", zap.Error(err))
			continue
		}
		c.process(ctx, delivery)
	}
}

// process decodes one delivery, runs the pipeline, and settles the message.
// Undecodable payloads are acknowledged: redelivery cannot fix a malformed
// body.
func (c *Consumer) process(ctx context.Context, delivery queue.Delivery) {
	task, err := queue.DecodeTask(delivery.Body())
	if err != nil {
		c.logger.Warn("dropping malformed task payload", zap.Error(err))
		metrics.ObserveTask(harvester.Drop.String())
		c.settle(delivery, harvester.Drop)
		return
	}

	outcome := c.Handle(ctx, task)
	metrics.ObserveTask(outcome.String())
	c.settle(delivery, outcome)
}

func (c *Consumer) settle(delivery queue.Delivery, outcome harvester.Outcome) {
	switch outcome {
	case harvester.Retry:
		if err := delivery.Nack(true); err != nil {
			c.logger.Error("nack failed", zap.Error(err))
		}
	default:
		if err := delivery.Ack(); err != nil {
			c.logger.Error("ack failed", zap.Error(err))
		}
	}
}

// Handle runs the sequential pipeline for one task and returns its outcome.
// No error crosses this boundary; the caller settles the queue message
// mechanically from the returned value.
func (c *Consumer) Handle(ctx context.Context, task harvester.Task) harvester.Outcome {
	if task.Type != harvester.TaskTypeScrape {
		c.logger.Warn("dropping task of unknown type", zap.String("type", task.Type))
		return harvester.Drop
	}

	handle := harvester.NormalizeHandle(task.ChannelName)
	if !harvester.ValidHandle(handle) {
		c.logger.Warn("dropping task with invalid channel handle",
			zap.String("channel_name", task.ChannelName),
		)
		return harvester.Drop
	}

	from, err := task.From()
	if err != nil {
		c.logger.Warn("dropping task with malformed from_date",
			zap.String("channel_name", task.ChannelName),
			zap.Error(err),
		)
		return harvester.Drop
	}

	logger := c.logger.With(zap.String("channel", handle))
	logger.Info("processing scrape task", zap.Time("from", from))

	peer, err := c.resolver.Resolve(ctx, handle)
	if err != nil {
		return c.fail(logger, "resolve channel", err)
	}
	if err := c.metadata.Scrape(ctx, peer); err != nil {
		return c.fail(logger, "scrape metadata", err)
	}
	written, err := c.posts.Scrape(ctx, peer, from, nil)
	if err != nil {
		return c.fail(logger, "scrape posts", err)
	}

	logger.Info("task complete", zap.Int64("posts", written))
	return harvester.Success
}

func (c *Consumer) fail(logger *zap.Logger, stage string, err error) harvester.Outcome {
	outcome := harvester.Classify(err)
	switch outcome {
	case harvester.Drop:
		logger.Warn("task failed permanently, dropping",
			zap.String("stage", stage),
			zap.Error(err),
		)
	default:
		logger.Error("task failed, returning for redelivery",
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
	return outcome
}
