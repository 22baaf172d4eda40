// Package harvester defines the domain types and narrow interfaces shared
// by every stage of the ingestion pipeline. It has no dependencies on any
// concrete store, queue, or platform client.
package harvester

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TaskTypeScrape is the only task type the consumer processes; anything
// else is logged and dropped.
const TaskTypeScrape = "scrape"

// DateLayout is the wire format for task date bounds (DD-MM-YYYY).
const DateLayout = "02-01-2006"

// Task is one unit of work pulled from the durable queue.
type Task struct {
	Type        string `json:"type"`
	ChannelName string `json:"channel_name"`
	FromDate    string `json:"from_date,omitempty"`
}

// From parses the task's lower date bound. An absent date returns the zero
// time, which means a full history backfill.
func (t Task) From() (time.Time, error) {
	if t.FromDate == "" {
		return time.Time{}, nil
	}
	from, err := time.Parse(DateLayout, t.FromDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse from_date %q: %w", t.FromDate, err)
	}
	return from, nil
}

var handlePattern = regexp.MustCompile(`^\w+$`)

// NormalizeHandle strips the platform's @ prefix from a channel handle.
func NormalizeHandle(name string) string {
	return strings.TrimPrefix(name, "@")
}

// ValidHandle reports whether a normalized handle is well-formed.
func ValidHandle(name string) bool {
	return name != "" && handlePattern.MatchString(name)
}

// Peer is one resolved channel identity, scoped to the worker that resolved
// it. Access hashes are only valid for the session that produced them, so
// peer rows are never shared across scraper identities and never updated
// once written.
type Peer struct {
	ScraperID   int64
	ChannelName string
	ChannelID   int64
	AccessHash  int64
}

// ChannelDescriptor is the full channel profile fetched on every metadata
// scrape. All fields except ID are mutable and overwritten on repeat.
type ChannelDescriptor struct {
	ID           int64
	Name         string
	Title        string
	Participants int64
	PinnedPostID *int64
	About        *string
}

// SimilarChannel is one entry of the platform's recommendation list for a
// base channel. Handle and title may be withheld by the platform.
type SimilarChannel struct {
	ID    int64
	Name  *string
	Title *string
}

// RunRecord is one append-only ledger row for a completed scrape run.
// UpperBound is the point in history the run actually reached: the scrape
// timestamp when the stream was exhausted, but only the last streamed
// message's publish date when the run was truncated by the per-run post cap
// or an explicit upper bound. Resumption must never skip past history a
// truncated run did not fetch.
type RunRecord struct {
	ChannelID    int64
	FromDate     time.Time
	UpperBound   time.Time
	ScrapeDate   time.Time
	PostsScraped int64
	ExecTime     float64
}

// RunBounds aggregates a channel's run history: the earliest lower bound
// any run ever started from, and the latest upper bound any run reached.
type RunBounds struct {
	EarliestFrom time.Time
	LatestUpper  time.Time
}

// Outcome is the three-valued result of processing one task. The consumer
// maps it to queue acknowledgment mechanically; no error ever crosses the
// queue-interaction boundary.
type Outcome int

const (
	// Success: the task completed and is acknowledged.
	Success Outcome = iota
	// Retry: a transient failure; the task is returned for redelivery.
	Retry
	// Drop: a permanent failure; the task is acknowledged without effect
	// because redelivery cannot succeed.
	Drop
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
