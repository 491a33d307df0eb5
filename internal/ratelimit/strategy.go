// Package ratelimit implements the per-bucket HTTP request router: the
// global rate-limit arbiter, the per-bucket rate-limit strategies, the
// response transformer pipeline, the per-bucket RequestStream state
// machine, and the Router façade. Each Strategy runs and reports a
// result the same way a classic allow/deny limiter does, generalized
// from "allow/deny" to "how long until the next send is safe".
package ratelimit

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
)

// Strategy observes an HTTP response and reports the minimum delay before
// the owning RequestStream may dispatch its next request. Snapshot must
// be safe to call concurrently with Apply from any goroutine,
// since it backs Router.Status reads that are not confined to the stream's
// own task.
type Strategy interface {
	Apply(resp *http.Response) time.Duration
	Snapshot() chatapi.Snapshot
}

// HeaderStrategy reads X-RateLimit-Remaining / X-RateLimit-Reset / Date
// from the response. Missing headers mean "no delay": the spec treats a
// bucket with no rate-limit headers as unlimited for this request.
type HeaderStrategy struct {
	remaining atomic.Int64
	resetAt   atomic.Int64
	date      atomic.Int64
}

// NewHeaderStrategy creates a HeaderStrategy with an initially-unknown
// (treated-as-unlimited) state.
func NewHeaderStrategy() *HeaderStrategy {
	return &HeaderStrategy{}
}

func (s *HeaderStrategy) Apply(resp *http.Response) time.Duration {
	remaining := parseIntHeader(resp.Header, "X-RateLimit-Remaining", -1)
	s.remaining.Store(remaining)

	if remaining != 0 {
		return 0
	}

	resetAtSeconds := parseIntHeader(resp.Header, "X-RateLimit-Reset", 0)
	date := parseDateHeader(resp.Header)
	s.resetAt.Store(resetAtSeconds * 1000)
	s.date.Store(date)

	delayMillis := resetAtSeconds*1000 - date
	if delayMillis < 0 {
		delayMillis = 0
	}
	return time.Duration(delayMillis) * time.Millisecond
}

func (s *HeaderStrategy) Snapshot() chatapi.Snapshot {
	return chatapi.Snapshot{
		Remaining: s.remaining.Load(),
		ResetAt:   s.resetAt.Load(),
		Date:      s.date.Load(),
	}
}

func parseIntHeader(h http.Header, name string, fallback int64) int64 {
	v := h.Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseDateHeader(h http.Header) int64 {
	v := h.Get("Date")
	if v == "" {
		return time.Now().UnixMilli()
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Now().UnixMilli()
	}
	return t.UnixMilli()
}

// TokenBucketStrategy self-limits endpoints the remote service does not
// rate-limit via headers but which the client still wants to cap locally
// — e.g. reaction adds at a fixed 1-per-250ms rate. Its reset time comes
// from its own bucket state, never from response headers.
type TokenBucketStrategy struct {
	capacity       int64
	refillInterval time.Duration
	nowFunc        func() time.Time

	tokens     atomic.Int64 // fixed-point: tokens * 1e6
	lastRefill atomic.Int64 // unix nanos
}

// NewTokenBucketStrategy creates a bucket that holds capacity permits and
// refills one permit every refillInterval.
func NewTokenBucketStrategy(capacity int64, refillInterval time.Duration, now func() time.Time) *TokenBucketStrategy {
	if now == nil {
		now = time.Now
	}
	s := &TokenBucketStrategy{capacity: capacity, refillInterval: refillInterval, nowFunc: now}
	s.tokens.Store(capacity * 1_000_000)
	s.lastRefill.Store(now().UnixNano())
	return s
}

// Apply ignores the response entirely — the bucket governs itself — and
// consumes one permit, returning the wait until the next is available.
func (s *TokenBucketStrategy) Apply(*http.Response) time.Duration {
	s.refill()
	tokens := s.tokens.Add(-1_000_000)
	if tokens >= 0 {
		return 0
	}
	// Restore; this caller must wait for the deficit to refill.
	s.tokens.Add(1_000_000)
	deficit := -tokens
	waitPerToken := s.refillInterval.Seconds()
	waitSeconds := float64(deficit) / 1_000_000 * waitPerToken
	return time.Duration(waitSeconds * float64(time.Second))
}

func (s *TokenBucketStrategy) refill() {
	now := s.nowFunc().UnixNano()
	last := s.lastRefill.Load()
	elapsed := now - last
	if elapsed <= 0 {
		return
	}
	if !s.lastRefill.CompareAndSwap(last, now) {
		return
	}
	refillRate := 1_000_000.0 / s.refillInterval.Seconds() // micro-tokens per second
	gained := int64(float64(elapsed) / float64(time.Second) * refillRate)
	if gained <= 0 {
		return
	}
	max := s.capacity * 1_000_000
	for {
		cur := s.tokens.Load()
		next := cur + gained
		if next > max {
			next = max
		}
		if s.tokens.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (s *TokenBucketStrategy) Snapshot() chatapi.Snapshot {
	tokens := s.tokens.Load() / 1_000_000
	if tokens < 0 {
		tokens = 0
	}
	now := s.nowFunc()
	return chatapi.Snapshot{
		Remaining: tokens,
		ResetAt:   now.Add(s.refillInterval).UnixMilli(),
		Date:      now.UnixMilli(),
	}
}
