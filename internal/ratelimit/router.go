package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

// StrategySelector picks the RateLimitStrategy a newly-created
// RequestStream should use for a given route. The default policy gives
// every route a HeaderStrategy, except ReactionCreate, which self-limits
// via a fixed-rate TokenBucket.
type StrategySelector func(route chatapi.Route) Strategy

// DefaultStrategySelector builds the default per-route policy.
func DefaultStrategySelector(c clock.Clock) StrategySelector {
	now := c.Now
	return func(route chatapi.Route) Strategy {
		if route.Method == chatapi.ReactionCreate.Method && route.URITemplate == chatapi.ReactionCreate.URITemplate {
			return NewTokenBucketStrategy(1, 250*time.Millisecond, now)
		}
		return NewHeaderStrategy()
	}
}

// Options configures a Router.
type Options struct {
	ResponseScheduler  Scheduler
	RateLimitScheduler Scheduler
	ResponseFunctions  []ResponseFunction
	StrategySelector   StrategySelector
	Clock              clock.Clock
	Logger             *zap.Logger
}

// Router is the façade owning the map of bucket -> RequestStream. It
// lazily creates streams and exposes Exchange (submit request, await
// response) and Status.
type Router struct {
	doer    Doer
	global  *GlobalRateLimiter
	opts    Options
	clock   clock.Clock
	logger  *zap.Logger

	mu      sync.Mutex
	streams map[chatapi.BucketKey]*RequestStream
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRouter creates a Router that dispatches through doer.
func NewRouter(doer Doer, opts Options) *Router {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.StrategySelector == nil {
		opts.StrategySelector = DefaultStrategySelector(opts.Clock)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		doer:    doer,
		global:  NewGlobalRateLimiter(opts.Clock),
		opts:    opts,
		clock:   opts.Clock,
		logger:  opts.Logger,
		streams: make(map[chatapi.BucketKey]*RequestStream),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Exchange submits req and returns a Future settled on the response
// scheduler.
func (r *Router) Exchange(req *chatapi.Request, shardTag string) (*chatapi.Future[*chatapi.Response], error) {
	if shardTag == "" {
		shardTag = "?"
	}
	c, err := newCorrelation(req, shardTag)
	if err != nil {
		return nil, err
	}
	stream := r.getOrCreate(req.Route, req.BucketKey())
	stream.push(c)
	return c.future, nil
}

// Status returns the rate-limit status for req's bucket. It fails for a
// bucket that has never had a RequestStream created — status is only
// meaningful after at least one request.
func (r *Router) Status(req *chatapi.Request) (chatapi.RequestStreamStatus, error) {
	key := req.BucketKey()
	r.mu.Lock()
	stream, ok := r.streams[key]
	r.mu.Unlock()
	if !ok {
		return chatapi.RequestStreamStatus{}, &chatapi.UnknownBucketError{Key: key}
	}
	return stream.status(), nil
}

// getOrCreate is an atomic get-or-create: under contention, exactly one
// stream is started and the losing candidates are discarded unstarted.
func (r *Router) getOrCreate(route chatapi.Route, key chatapi.BucketKey) *RequestStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.streams[key]; ok {
		return s
	}
	s := newRequestStream(key, StreamConfig{
		Doer:               r.doer,
		Global:             r.global,
		Strategy:           r.opts.StrategySelector(route),
		Pipeline:           Pipeline(r.opts.ResponseFunctions),
		Clock:              r.clock,
		ResponseScheduler:  r.opts.ResponseScheduler,
		RateLimitScheduler: r.opts.RateLimitScheduler,
		Logger:             r.logger.With(zap.String("bucket_template", key.Template), zap.String("bucket_major", key.Major)),
	})
	r.streams[key] = s
	r.opts.RateLimitSchedulerOrDefault().Go(func() {
		s.run(r.ctx)
	})
	return s
}

// RateLimitSchedulerOrDefault returns the configured rate-limit scheduler,
// falling back to GoroutineScheduler. Exposed on Options for symmetry with
// ResponseScheduler's implicit default in newRequestStream.
func (o Options) RateLimitSchedulerOrDefault() Scheduler {
	if o.RateLimitScheduler != nil {
		return o.RateLimitScheduler
	}
	return GoroutineScheduler{}
}

// Close cancels every stream's worker loop and drains (cancels) every
// queued correlation. In-flight requests are allowed to complete.
func (r *Router) Close() {
	r.mu.Lock()
	streams := make([]*RequestStream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	r.cancel()
	for _, s := range streams {
		s.cancelQueued()
	}
}
