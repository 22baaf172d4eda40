// Package ledger records completed scrape windows and computes resumable
// lower bounds from them.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

// Ledger wraps the append-only run store.
type Ledger struct {
	store  harvester.RunStore
	logger *zap.Logger
}

// New constructs a Ledger.
func New(store harvester.RunStore, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// EffectiveFrom computes the lower bound a new run should actually start
// from. Requests beginning inside already-covered history advance to the
// furthest upper bound previously reached, so covered ranges are never
// re-fetched. A request predating every prior bound is a deliberate
// backfill and runs as-is.
func (l *Ledger) EffectiveFrom(ctx context.Context, channelID int64, requested time.Time) (time.Time, error) {
	bounds, err := l.store.RunBounds(ctx, channelID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load run bounds: %w", err)
	}
	if bounds == nil {
		return requested, nil
	}
	if requested.Before(bounds.EarliestFrom) {
		l.logger.Info("backfill requested before all prior runs",
			zap.Int64("channel_id", channelID),
			zap.Time("requested", requested),
			zap.Time("earliest_prior", bounds.EarliestFrom),
		)
		return requested, nil
	}
	if bounds.LatestUpper.After(requested) {
		l.logger.Info("advancing lower bound past covered history",
			zap.Int64("channel_id", channelID),
			zap.Time("requested", requested),
			zap.Time("effective", bounds.LatestUpper),
		)
		return bounds.LatestUpper, nil
	}
	return requested, nil
}

// Record appends one completed run to the ledger.
func (l *Ledger) Record(ctx context.Context, run harvester.RunRecord) error {
	if err := l.store.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}
