package algorithm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

func TestTokenBucket_TakeConsumesAndRefills(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock := clock.NewMock(now)
	bucket := NewTokenBucket(client, mock, 1, 2) // 1 token/sec, capacity 2

	// bucket starts full (the very first refill treats the missing record
	// as an unbounded elapsed window, clamped to capacity).
	taken, err := bucket.Take(context.Background(), "status", "admin", 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), taken)

	// exhausted: no time has passed, nothing to refill
	taken, err = bucket.Take(context.Background(), "status", "admin", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), taken)

	mock.Advance(time.Second)
	server.FastForward(time.Second)
	taken, err = bucket.Take(context.Background(), "status", "admin", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), taken)
}

func TestTokenBucket_SurfacesHaveIndependentBudgets(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	mock := clock.NewMock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	bucket := NewTokenBucket(client, mock, 1, 1)

	taken, err := bucket.Take(context.Background(), "healthz", "admin", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), taken, "healthz's bucket starts full")

	taken, err = bucket.Take(context.Background(), "status", "admin", 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), taken, "status has its own budget, unaffected by healthz's exhausted bucket")
}

func TestTokenBucket_Capacity(t *testing.T) {
	bucket := NewTokenBucket(nil, clock.Real(), 5, 10)
	assert.Equal(t, uint32(10), bucket.Capacity())
}
