package adminlimit

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/lowc1012/chat-gateway-router/internal/adminlimit/algorithm"
	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

var _ Limiter = &TokenBucketLimiter{}

// TokenBucketLimiter regulates the admin surface with a token bucket: each
// request consumes a token from its (surface, caller) bucket, refilled at a
// fixed rate. All router-gateway replicas share the same Redis-backed
// buckets, so the limit holds fleet-wide rather than per process.
type TokenBucketLimiter struct {
	impl *algorithm.TokenBucket
}

// NewTokenBucketLimiter creates a TokenBucketLimiter with the given refill
// rate and capacity.
func NewTokenBucketLimiter(client *redis.Client, c clock.Clock, rate float64, capacity uint32) *TokenBucketLimiter {
	return &TokenBucketLimiter{impl: algorithm.NewTokenBucket(client, c, rate, capacity)}
}

func (l *TokenBucketLimiter) Run(ctx context.Context, req *Request) (*Result, error) {
	taken, err := l.impl.Take(ctx, req.Surface, req.Key, 1)
	if err != nil {
		return nil, err
	}
	if taken == 0 {
		return &Result{State: Deny, RequestLimit: uint64(l.impl.Capacity())}, nil
	}
	return &Result{State: Allow, RequestLimit: uint64(l.impl.Capacity())}, nil
}
