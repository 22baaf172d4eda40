package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

const recordRunSQL = `INSERT INTO runs (channel_id, from_date, upper_bound, scrape_date, posts_scraped, exec_time)
VALUES ($1, $2, $3, $4, $5, $6)`

const runBoundsSQL = `SELECT min(from_date), max(upper_bound) FROM runs
WHERE channel_id = $1`

// RecordRun appends one ledger row. Rows are never updated or deleted.
func (s *Store) RecordRun(ctx context.Context, run harvester.RunRecord) error {
	_, err := s.db.Exec(ctx, recordRunSQL,
		run.ChannelID, run.FromDate, run.UpperBound, run.ScrapeDate, run.PostsScraped, run.ExecTime)
	if err != nil {
		return fmt.Errorf("record run for channel %d: %w", run.ChannelID, err)
	}
	return nil
}

// RunBounds aggregates the channel's run history, or returns nil when the
// channel has never been scraped. The latest bound is the furthest point in
// history any run actually reached, not when it ran; truncated runs report
// their last streamed message. The aggregate query always yields one row;
// both columns are NULL in the no-runs case.
func (s *Store) RunBounds(ctx context.Context, channelID int64) (*harvester.RunBounds, error) {
	var earliest, latest *time.Time
	err := s.db.QueryRow(ctx, runBoundsSQL, channelID).Scan(&earliest, &latest)
	if err != nil {
		return nil, fmt.Errorf("load run bounds for channel %d: %w", channelID, err)
	}
	if earliest == nil || latest == nil {
		return nil, nil
	}
	return &harvester.RunBounds{EarliestFrom: *earliest, LatestUpper: *latest}, nil
}
