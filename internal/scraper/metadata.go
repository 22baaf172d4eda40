// Package scraper turns a resolved channel into persisted metadata,
// recommendation edges, and windowed post batches.
package scraper

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/metrics"
)

// MetadataScraper fetches and upserts channel descriptors and the
// similar-channel recommendation graph.
type MetadataScraper struct {
	source   harvester.Source
	channels harvester.ChannelStore
	logger   *zap.Logger
}

// NewMetadataScraper constructs a MetadataScraper.
func NewMetadataScraper(source harvester.Source, channels harvester.ChannelStore, logger *zap.Logger) *MetadataScraper {
	return &MetadataScraper{source: source, channels: channels, logger: logger}
}

// Scrape upserts the channel row, then refreshes recommendation edges.
// A failure to fetch recommendations degrades gracefully: the committed
// channel upsert stands and the list is simply absent this run. Storage
// failures always propagate.
func (s *MetadataScraper) Scrape(ctx context.Context, peer harvester.Peer) error {
	descriptor, err := s.source.FetchChannel(ctx, peer)
	if err != nil {
		return fmt.Errorf("fetch channel %q: %w", peer.ChannelName, err)
	}
	if err := s.channels.UpsertChannel(ctx, descriptor); err != nil {
		return fmt.Errorf("upsert channel %d: %w", descriptor.ID, err)
	}
	s.logger.Info("scraped channel metadata",
		zap.String("channel", peer.ChannelName),
		zap.Int64("channel_id", descriptor.ID),
		zap.Int64("participants", descriptor.Participants),
	)

	similars, err := s.source.FetchSimilar(ctx, peer)
	if err != nil {
		s.logger.Warn("similar channels unavailable this run",
			zap.String("channel", peer.ChannelName),
			zap.Error(err),
		)
		return nil
	}
	if len(similars) == 0 {
		return nil
	}
	if err := s.channels.UpsertSimilars(ctx, peer.ChannelID, similars); err != nil {
		return fmt.Errorf("upsert similar channels for %d: %w", peer.ChannelID, err)
	}
	metrics.ObserveSimilarEdges(len(similars))
	s.logger.Info("upserted similar channels",
		zap.String("channel", peer.ChannelName),
		zap.Int("count", len(similars)),
	)
	return nil
}
