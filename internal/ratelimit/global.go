package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

// GlobalRateLimiter is a single shared gate per Router. When tripped, every
// stream must await it before its next dispatch. It is implemented as a
// CAS-to-later atomic deadline cell rather than a mutex, so a tripped
// state degenerates to a lock-free read when clear.
type GlobalRateLimiter struct {
	deadlineNanos atomic.Int64 // unix nanos; 0 means "no active deadline"
	clock         clock.Clock
}

// NewGlobalRateLimiter creates a limiter driven by clock.
func NewGlobalRateLimiter(c clock.Clock) *GlobalRateLimiter {
	if c == nil {
		c = clock.Real()
	}
	return &GlobalRateLimiter{clock: c}
}

// Trip sets the deadline to now+duration if that is later than the current
// deadline (CAS loop, never moves the deadline earlier).
func (g *GlobalRateLimiter) Trip(duration time.Duration) {
	candidate := g.clock.Now().Add(duration).UnixNano()
	for {
		current := g.deadlineNanos.Load()
		if current >= candidate {
			return
		}
		if g.deadlineNanos.CompareAndSwap(current, candidate) {
			return
		}
	}
}

// Await blocks until there is no active deadline, or until ctx is done.
func (g *GlobalRateLimiter) Await(ctx context.Context) error {
	for {
		deadline := g.deadlineNanos.Load()
		if deadline == 0 {
			return nil
		}
		now := g.clock.Now().UnixNano()
		if now >= deadline {
			g.deadlineNanos.CompareAndSwap(deadline, 0)
			return nil
		}
		wait := time.Duration(deadline - now)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// IsTripped reports whether a deadline is currently active, for status
// projections.
func (g *GlobalRateLimiter) IsTripped() bool {
	deadline := g.deadlineNanos.Load()
	if deadline == 0 {
		return false
	}
	return g.clock.Now().UnixNano() < deadline
}
