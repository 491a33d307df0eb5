package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

// TestRequestStream_HonorsStrategyDelayAgainstInjectedClock exercises
// Testable Property S2: a strategy-scheduled delay must gate the next
// dispatch even when the stream's own clock is a Mock frozen far from
// wall-clock time — awaitBucketDelay must compare nextDispatchAt against
// the same clock it was computed from, never against real time.
func TestRequestStream_HonorsStrategyDelayAgainstInjectedClock(t *testing.T) {
	route := chatapi.NewRoute(http.MethodPut, "/channels/{channel.id}/messages/{message.id}/reactions/{emoji}/@me").WithMajorParam("channel.id")
	doer := &fakeDoer{responses: []*http.Response{
		jsonResponse(200, `{}`),
		jsonResponse(200, `{}`),
		jsonResponse(200, `{}`),
	}}

	// Frozen decades away from wall-clock time: under the old
	// time.Until(nextDispatchAt) bug this makes the computed wait deeply
	// negative, so the third dispatch would fire immediately instead of
	// waiting out the bucket's refill delay.
	mockClock := clock.NewMock(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC))
	strategy := NewTokenBucketStrategy(1, 100*time.Millisecond, time.Now)
	global := NewGlobalRateLimiter(mockClock)

	s := newRequestStream(chatapi.BucketKey{Template: route.URITemplate, Major: "1"}, StreamConfig{
		Doer:     doer,
		Global:   global,
		Strategy: strategy,
		Clock:    mockClock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	req := chatapi.NewRequest(route, "1", "2", "3")
	c1, err := newCorrelation(req, "shard-0")
	require.NoError(t, err)
	c2, err := newCorrelation(req, "shard-0")
	require.NoError(t, err)
	c3, err := newCorrelation(req, "shard-0")
	require.NoError(t, err)

	s.push(c1)
	s.push(c2)
	s.push(c3)

	// c1 consumes the bucket's sole token (0 delay); c2's response finds
	// it empty and schedules c3 roughly refillInterval out.
	require.Eventually(t, func() bool { return doer.calls.Load() == 2 }, 200*time.Millisecond, 2*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(2), doer.calls.Load(), "third dispatch fired before its scheduled delay elapsed")

	require.Eventually(t, func() bool { return doer.calls.Load() == 3 }, 500*time.Millisecond, 5*time.Millisecond)
}
