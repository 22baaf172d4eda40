// Package peers resolves channel handles to platform identities through a
// persisted cache, avoiding the expensive resolution call whenever possible.
package peers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/floodguard"
	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/metrics"
)

// Resolver looks peers up in the store and falls back to the source, guarded
// by the flood guard. Access hashes are scoped to this resolver's scraper
// identity and are never shared across workers.
type Resolver struct {
	store     harvester.PeerStore
	source    harvester.Source
	guard     *floodguard.Guard
	scraperID int64
	logger    *zap.Logger
}

// New constructs a Resolver for one worker identity.
func New(
	store harvester.PeerStore,
	source harvester.Source,
	guard *floodguard.Guard,
	scraperID int64,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		store:     store,
		source:    source,
		guard:     guard,
		scraperID: scraperID,
		logger:    logger,
	}
}

// Resolve returns the peer for a channel handle. A cache hit returns
// immediately with no external call and no guard interaction. On a miss the
// guard is consulted, the source resolves the handle, and the new peer is
// persisted before being returned. Peer rows are immutable once written.
func (r *Resolver) Resolve(ctx context.Context, channelName string) (harvester.Peer, error) {
	cached, err := r.store.GetPeer(ctx, channelName, r.scraperID)
	if err != nil {
		return harvester.Peer{}, fmt.Errorf("peer lookup: %w", err)
	}
	if cached != nil {
		metrics.ObserveResolve("hit")
		r.logger.Info("loaded peer from cache", zap.String("channel", channelName))
		return *cached, nil
	}

	r.logger.Info("peer not cached, resolving at source", zap.String("channel", channelName))
	if err := r.guard.Check(ctx); err != nil {
		metrics.ObserveResolve("error")
		return harvester.Peer{}, err
	}

	resolved, err := r.source.ResolveHandle(ctx, channelName)
	if err != nil {
		metrics.ObserveResolve("error")
		var rle *harvester.RateLimitedError
		if errors.As(err, &rle) {
			r.guard.RecordLimit(rle.RetryAfter)
		}
		return harvester.Peer{}, fmt.Errorf("resolve handle %q: %w", channelName, err)
	}

	peer := harvester.Peer{
		ScraperID:   r.scraperID,
		ChannelName: channelName,
		ChannelID:   resolved.ChannelID,
		AccessHash:  resolved.AccessHash,
	}
	if err := r.store.PutPeer(ctx, peer); err != nil {
		return harvester.Peer{}, fmt.Errorf("persist peer: %w", err)
	}

	metrics.ObserveResolve("miss")
	r.logger.Info("resolved and cached new peer",
		zap.String("channel", channelName),
		zap.Int64("channel_id", peer.ChannelID),
	)
	return peer, nil
}
