package ratelimit

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

// Scheduler runs a function asynchronously. The router uses two named
// instances: the response scheduler, which may tolerate blocking caller
// code, and the rate-limit scheduler, which carries delay timers and must
// never run blocking work.
type Scheduler interface {
	Go(func())
}

// GoroutineScheduler runs every function on its own goroutine. It is the
// default for both the response and rate-limit schedulers.
type GoroutineScheduler struct{}

func (GoroutineScheduler) Go(fn func()) { go fn() }

// RequestStream is the per-BucketKey serial worker: it owns a FIFO of
// pending correlations, a RateLimitStrategy, a reference to the shared
// GlobalRateLimiter, and its own cooperative task.
// At most one HTTP request from a given RequestStream is ever in flight.
type RequestStream struct {
	key       chatapi.BucketKey
	doer      Doer
	global    *GlobalRateLimiter
	strategy  Strategy
	pipeline  Pipeline
	clock     clock.Clock
	respSched Scheduler
	logger    *zap.Logger

	mu    sync.Mutex
	queue []*correlation

	notify chan struct{}

	nextDispatchAt time.Time
}

// StreamConfig bundles a RequestStream's collaborators.
type StreamConfig struct {
	Doer               Doer
	Global             *GlobalRateLimiter
	Strategy           Strategy
	Pipeline           Pipeline
	Clock              clock.Clock
	ResponseScheduler  Scheduler
	RateLimitScheduler Scheduler
	Logger             *zap.Logger
}

func newRequestStream(key chatapi.BucketKey, cfg StreamConfig) *RequestStream {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.ResponseScheduler == nil {
		cfg.ResponseScheduler = GoroutineScheduler{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &RequestStream{
		key:       key,
		doer:      cfg.Doer,
		global:    cfg.Global,
		strategy:  cfg.Strategy,
		pipeline:  cfg.Pipeline,
		clock:     cfg.Clock,
		respSched: cfg.ResponseScheduler,
		logger:    cfg.Logger,
		notify:    make(chan struct{}, 1),
	}
}

// push enqueues a correlation at the tail of the FIFO.
func (s *RequestStream) push(c *correlation) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	s.wake()
}

// pushFront re-enqueues a correlation at the head, used by the automatic
// 429 re-enqueue and by the ResponseFunction retry signal.
func (s *RequestStream) pushFront(c *correlation) {
	s.mu.Lock()
	s.queue = append([]*correlation{c}, s.queue...)
	s.mu.Unlock()
	s.wake()
}

func (s *RequestStream) popFront() (*correlation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	c := s.queue[0]
	s.queue = s.queue[1:]
	return c, true
}

func (s *RequestStream) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *RequestStream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// cancelQueued drains every correlation still waiting in the FIFO and
// settles each future with a CancelledError. Whatever is DISPATCHING is
// left to drain on its own — closing the Router cancels every stream's
// queue, but in-flight requests are allowed to drain.
func (s *RequestStream) cancelQueued() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, c := range pending {
		c.future.Cancel(c.route)
	}
}

// status projects the stream's current rate-limit state.
func (s *RequestStream) status() chatapi.RequestStreamStatus {
	return chatapi.RequestStreamStatus{
		GlobalRateLimited: s.global.IsTripped(),
		Snapshot:          s.strategy.Snapshot(),
	}
}

// run is the worker loop implementing the stream's dispatch state machine.
// It exits when ctx is cancelled, i.e. when Router.Close runs.
func (s *RequestStream) run(ctx context.Context) {
	for {
		c, ok := s.popFront()
		if !ok {
			select {
			case <-s.notify:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-c.future.Cancelled():
			continue // dropped while still queued; future already settled by Cancel
		default:
		}

		// WAITING_GLOBAL
		if err := s.global.Await(ctx); err != nil {
			s.completeAsync(c, nil, err)
			return
		}

		// WAITING_BUCKET
		s.awaitBucketDelay(ctx)

		// DISPATCHING
		resp, rawBody, transportErr := s.dispatchHTTP(ctx, c)

		if transportErr != nil {
			s.completeAsync(c, nil, &chatapi.TransportError{Route: c.route, Err: transportErr})
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			s.handle429(c, resp, rawBody)
			continue
		}

		// APPLYING
		delay := s.strategy.Apply(resp)
		s.scheduleNextDispatch(delay)

		chatResp := &chatapi.Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: rawBody}
		var asErr error
		if resp.StatusCode >= 400 {
			asErr = &chatapi.HTTPStatusError{Route: c.route, StatusCode: resp.StatusCode, Body: rawBody}
		}

		finalResp, finalErr, sig := s.pipeline.Apply(c.route, chatResp, asErr)

		if sig == SignalRetry && !c.retried {
			c.retried = true
			s.pushFront(c)
			continue
		}

		// COMPLETING
		s.completeAsync(c, finalResp, finalErr)
	}
}

func (s *RequestStream) handle429(c *correlation, resp *http.Response, rawBody []byte) {
	global := is429Global(resp, rawBody)
	wait := retryAfterDuration(resp, rawBody)
	if global {
		s.global.Trip(wait)
		s.logger.Warn("global rate limit tripped", zap.Duration("retry_after", wait))
	}
	// The bucket strategy absorbs a bucket-local 429 via its own
	// remaining/reset bookkeeping.
	delay := s.strategy.Apply(resp)
	s.scheduleNextDispatch(delay)
	s.pushFront(c)
}

// awaitBucketDelay blocks until the delay scheduled by the previous
// response has elapsed. The delay from a response applies to the *next*
// dispatch, never the one that produced it.
func (s *RequestStream) awaitBucketDelay(ctx context.Context) {
	wait := s.nextDispatchAt.Sub(s.clock.Now())
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *RequestStream) scheduleNextDispatch(delay time.Duration) {
	if delay <= 0 {
		s.nextDispatchAt = time.Time{}
		return
	}
	s.nextDispatchAt = s.clock.Now().Add(delay)
}

func (s *RequestStream) dispatchHTTP(ctx context.Context, c *correlation) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if c.body != nil {
		bodyReader = bytes.NewReader(c.body)
	}
	// Detached from ctx's cancellation so that Router.Close lets an
	// in-flight request drain instead of aborting it.
	httpReq, err := http.NewRequestWithContext(context.WithoutCancel(ctx), c.method, c.uri, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	if c.headers != nil {
		httpReq.Header = c.headers.Clone()
	}

	resp, err := s.doer.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, raw, nil
}

// completeAsync settles c.future on the response scheduler, never on this
// stream's own task.
func (s *RequestStream) completeAsync(c *correlation, resp *chatapi.Response, err error) {
	s.respSched.Go(func() {
		c.future.Complete(resp, err)
	})
}
