package algorithm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

type tokenBucketRecord struct {
	TokenCount float64 `redis:"tokenCount"`
	LastFilled int64   `redis:"lastFilled"`
}

// TokenBucket is a Redis-backed token bucket shared by every router-gateway
// replica. Buckets are scoped per (surface, caller key): the admin surface
// exposes several endpoints of very different cost (a health probe vs. a
// full bucket-status dump), and a burst against one must not eat into the
// other's budget even though both are governed by the same limiter and
// share Redis as their only coordination point across replicas.
type TokenBucket struct {
	sync.Mutex
	client    *redis.Client
	clock     clock.Clock
	rate      float64 // refill rate per second
	capacity  uint32
	keyPrefix string
}

// NewTokenBucket creates a TokenBucket with the given refill rate and
// capacity.
func NewTokenBucket(client *redis.Client, c clock.Clock, rate float64, capacity uint32) *TokenBucket {
	if c == nil {
		c = clock.Real()
	}
	return &TokenBucket{
		client:    client,
		clock:     c,
		rate:      rate,
		capacity:  capacity,
		keyPrefix: "adminlimit:token_bucket:",
	}
}

func (b *TokenBucket) Capacity() uint32 { return b.capacity }

// Take removes amount tokens from the bucket scoped to (surface, key),
// returning the number actually taken (0 if the bucket doesn't have
// enough).
func (b *TokenBucket) Take(ctx context.Context, surface, key string, amount uint32) (uint32, error) {
	b.Lock()
	defer b.Unlock()

	redisKey := b.keyPrefix + surface + ":" + key
	if err := b.refill(ctx, redisKey, b.clock.Now()); err != nil {
		return 0, err
	}

	var rec tokenBucketRecord
	if err := b.client.HGetAll(ctx, redisKey).Scan(&rec); err != nil || rec.TokenCount < float64(amount) {
		return 0, nil
	}

	rec.TokenCount -= float64(amount)
	if err := b.client.HSet(ctx, redisKey, map[string]interface{}{
		"tokenCount": rec.TokenCount,
		"lastFilled": rec.LastFilled,
	}).Err(); err != nil {
		return 0, err
	}
	return amount, nil
}

func (b *TokenBucket) refill(ctx context.Context, redisKey string, current time.Time) error {
	var rec tokenBucketRecord
	if err := b.client.HGetAll(ctx, redisKey).Scan(&rec); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("adminlimit: read token bucket record: %w", err)
	}

	elapsed := current.Sub(time.Unix(rec.LastFilled, 0))
	rec.TokenCount += elapsed.Seconds() * b.rate
	if rec.TokenCount > float64(b.capacity) {
		rec.TokenCount = float64(b.capacity)
	}
	rec.LastFilled = current.Unix()
	return b.client.HSet(ctx, redisKey, rec).Err()
}
