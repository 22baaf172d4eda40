// Package floodguard tracks the cooldown window for the platform's handle
// resolution call class.
//
// Resolution is the platform's most abuse-sensitive operation; every other
// call (fetching messages for an already-known channel) must remain usable
// even while resolution is cooling down, so the guard is scoped to
// resolution only rather than acting as a global kill switch.
package floodguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/metrics"
)

// Guard holds the shared per-worker resolution cooldown state. It is safe
// for concurrent use, though the worker pipeline is sequential.
type Guard struct {
	mu            sync.Mutex
	clock         harvester.Clock
	logger        *zap.Logger
	spacing       time.Duration
	lastResolve   time.Time
	cooldownUntil time.Time

	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a Guard. spacing is the preventive minimum gap enforced
// between successive resolution calls, independent of reactive cooldowns;
// zero disables it.
func New(clock harvester.Clock, spacing time.Duration, logger *zap.Logger) *Guard {
	return &Guard{
		clock:   clock,
		logger:  logger,
		spacing: spacing,
		sleep:   sleepContext,
	}
}

// Check validates that a resolution call may go out now. An active reactive
// cooldown fails fast with *RateLimitedError carrying the remaining wait;
// callers decide whether to redeliver or abort. The preventive spacing, by
// contrast, is short and bounded, so Check waits it out.
func (g *Guard) Check(ctx context.Context) error {
	g.mu.Lock()
	now := g.clock.Now()

	if !g.cooldownUntil.IsZero() && now.Before(g.cooldownUntil) {
		remaining := g.cooldownUntil.Sub(now)
		g.mu.Unlock()
		g.logger.Warn("resolution cooldown active",
			zap.Duration("remaining", remaining),
		)
		return &harvester.RateLimitedError{RetryAfter: remaining}
	}

	var wait time.Duration
	if g.spacing > 0 && !g.lastResolve.IsZero() {
		if elapsed := now.Sub(g.lastResolve); elapsed < g.spacing {
			wait = g.spacing - elapsed
		}
	}
	g.mu.Unlock()

	if wait > 0 {
		g.logger.Info("spacing resolution call", zap.Duration("wait", wait))
		if err := g.sleep(ctx, wait); err != nil {
			return fmt.Errorf("resolution spacing wait: %w", err)
		}
	}

	g.mu.Lock()
	g.lastResolve = g.clock.Now()
	g.mu.Unlock()
	return nil
}

// RecordLimit registers a rate violation reported by the platform itself,
// blocking further resolution calls for the given duration.
func (g *Guard) RecordLimit(wait time.Duration) {
	g.mu.Lock()
	g.cooldownUntil = g.clock.Now().Add(wait)
	g.mu.Unlock()
	metrics.ObserveCooldown(wait)
	g.logger.Error("platform rate limit recorded", zap.Duration("wait", wait))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
