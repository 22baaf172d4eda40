package harvester

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel failures of the external source. The first three are permanent:
// redelivering the task cannot make the channel appear or open up.
var (
	ErrInvalidHandle       = errors.New("invalid channel handle")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrChannelInaccessible = errors.New("channel is private or inaccessible")

	// ErrEndOfHistory terminates a message stream normally.
	ErrEndOfHistory = errors.New("end of channel history")
)

// RateLimitedError reports a rate violation signaled by the platform,
// carrying the wait the platform demanded. Always retryable.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by platform, retry after %s", e.RetryAfter)
}

// Classify maps a processing failure to its task outcome. Only failures
// known to be task-bound are dropped; everything unrecognized defaults to
// Retry, trading possible retry storms for never losing data silently.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}
	switch {
	case errors.Is(err, ErrInvalidHandle),
		errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrChannelInaccessible):
		return Drop
	default:
		return Retry
	}
}
