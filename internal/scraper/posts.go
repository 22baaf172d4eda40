package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/ledger"
	"github.com/tgstats/channel-harvester/internal/metrics"
)

// PostScraperConfig bounds one scrape run.
type PostScraperConfig struct {
	// BatchSize is the flush threshold for batch upserts.
	BatchSize int
	// MaxPosts caps posts per run so uncapped requests stay bounded.
	MaxPosts int
}

// PostScraper streams a channel's history from a resumable lower bound and
// upserts it in idempotent batches.
type PostScraper struct {
	source harvester.Source
	posts  harvester.PostStore
	ledger *ledger.Ledger
	clock  harvester.Clock
	cfg    PostScraperConfig
	logger *zap.Logger
}

// NewPostScraper constructs a PostScraper.
func NewPostScraper(
	source harvester.Source,
	posts harvester.PostStore,
	runLedger *ledger.Ledger,
	clock harvester.Clock,
	cfg PostScraperConfig,
	logger *zap.Logger,
) *PostScraper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 250
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = 20000
	}
	return &PostScraper{
		source: source,
		posts:  posts,
		ledger: runLedger,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Scrape streams posts from the effective lower bound in chronological
// order, flushing full batches as it goes, and appends one run record when
// done. until, when non-nil, terminates the stream early; posts are
// requested in non-decreasing publish-time order so the first message past
// the bound ends the run. Returns the number of posts written.
func (s *PostScraper) Scrape(
	ctx context.Context,
	peer harvester.Peer,
	requestedFrom time.Time,
	until *time.Time,
) (int64, error) {
	started := s.clock.Now()

	effectiveFrom, err := s.ledger.EffectiveFrom(ctx, peer.ChannelID, requestedFrom)
	if err != nil {
		return 0, err
	}

	stream, err := s.source.StreamMessages(ctx, peer, effectiveFrom)
	if err != nil {
		return 0, fmt.Errorf("open message stream for %q: %w", peer.ChannelName, err)
	}

	s.logger.Info("streaming posts",
		zap.String("channel", peer.ChannelName),
		zap.Time("from", effectiveFrom),
	)

	var written int64
	batch := make([]harvester.Post, 0, s.cfg.BatchSize)
	seen := 0
	exhausted := false
	var lastDate time.Time

	for seen < s.cfg.MaxPosts {
		msg, err := stream.Next(ctx)
		if errors.Is(err, harvester.ErrEndOfHistory) {
			exhausted = true
			break
		}
		if err != nil {
			return written, fmt.Errorf("stream messages for %q: %w", peer.ChannelName, err)
		}
		if until != nil && msg.Date.After(*until) {
			break
		}
		lastDate = msg.Date

		post, err := ExtractPost(peer.ChannelID, msg, s.clock.Now())
		if err != nil {
			// A single message's extraction failure never aborts the batch.
			metrics.ObserveSkippedPost()
			s.logger.Warn("skipping post",
				zap.String("channel", peer.ChannelName),
				zap.Int64("post_id", msg.ID),
				zap.Error(err),
			)
			continue
		}

		seen++
		batch = append(batch, post)
		if len(batch) >= s.cfg.BatchSize {
			if err := s.flush(ctx, batch); err != nil {
				return written, err
			}
			written += int64(len(batch))
			batch = batch[:0]
			s.logger.Info("posts processed so far",
				zap.String("channel", peer.ChannelName),
				zap.Int64("written", written),
			)
		}
	}

	if len(batch) > 0 {
		if err := s.flush(ctx, batch); err != nil {
			return written, err
		}
		written += int64(len(batch))
	}

	// A truncated run (post cap or explicit bound) only covered history up
	// to the last message it streamed; claiming anything later would make
	// the skipped remainder unreachable for every future run.
	upper := started
	if !exhausted {
		upper = lastDate
		if upper.IsZero() {
			upper = effectiveFrom
		}
	}

	elapsed := s.clock.Now().Sub(started)
	run := harvester.RunRecord{
		ChannelID:    peer.ChannelID,
		FromDate:     effectiveFrom,
		UpperBound:   upper,
		ScrapeDate:   started,
		PostsScraped: written,
		ExecTime:     elapsed.Seconds(),
	}
	if err := s.ledger.Record(ctx, run); err != nil {
		return written, err
	}
	metrics.ObserveRun(elapsed)

	s.logger.Info("finished scraping posts",
		zap.String("channel", peer.ChannelName),
		zap.Int64("posts", written),
		zap.Duration("elapsed", elapsed),
	)
	return written, nil
}

func (s *PostScraper) flush(ctx context.Context, batch []harvester.Post) error {
	start := s.clock.Now()
	if err := s.posts.UpsertBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert batch of %d posts: %w", len(batch), err)
	}
	metrics.ObserveBatch(len(batch), s.clock.Now().Sub(start))
	return nil
}
