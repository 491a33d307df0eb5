package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/internal/adminlimit"
	"github.com/lowc1012/chat-gateway-router/internal/broker/redisbroker"
	"github.com/lowc1012/chat-gateway-router/internal/gateway"
	"github.com/lowc1012/chat-gateway-router/internal/gwclient"
	"github.com/lowc1012/chat-gateway-router/internal/ratelimit"
	"github.com/lowc1012/chat-gateway-router/internal/telemetry"
	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
	"github.com/lowc1012/chat-gateway-router/pkg/clock"
)

func main() {
	mode := flag.String("mode", "worker", "relay mode: leader (owns the real gateway connection) or worker")
	redisAddr := flag.String("redis-addr", "localhost:6379", "redis address for the broker and admin limiter")
	gatewayURL := flag.String("gateway-url", "wss://gateway.example.com", "platform gateway URL (leader mode only)")
	shardIndex := flag.Uint("shard-index", 0, "this node's shard index")
	shardCount := flag.Uint("shard-count", 1, "total shard count")
	adminAddr := flag.String("admin-addr", "localhost:8081", "admin HTTP surface listen address")
	flag.Parse()

	logger := telemetry.Logger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{Addr: *redisAddr})

	partition := gateway.PartitionKey(uint32(*shardIndex), uint32(*shardCount))
	broker := redisbroker.New(redisClient,
		"relay:payload:"+partition,
		"relay:control:"+partition,
		redisbroker.WithLogger(logger),
	)

	adminLimiter := adminlimit.NewTokenBucketLimiter(redisClient, clock.Real(), 1, 20)
	go serveAdminSurface(*adminAddr, adminLimiter, buildRESTRouter(logger))

	switch *mode {
	case "leader":
		runLeader(ctx, logger, *gatewayURL, broker)
	default:
		runWorker(ctx, logger, uint32(*shardIndex), broker)
	}
}

// runLeader owns the real gateway connection and relays it to the broker.
func runLeader(ctx context.Context, logger *zap.Logger, url string, broker *redisbroker.Broker) {
	std := gwclient.New(logger.Named("gwclient"))
	upstream := gateway.NewUpstreamGatewayClient(std, broker, broker, logger.Named("upstream"))
	if err := upstream.Execute(ctx, url); err != nil && ctx.Err() == nil {
		logger.Error("upstream gateway client exited", zap.Error(err))
	}
}

// runWorker has no real connection; it relays via the broker and exposes a
// StandardGatewayClient-shaped dispatch stream to application code.
func runWorker(ctx context.Context, logger *zap.Logger, shardIndex uint32, broker *redisbroker.Broker) {
	downstream := gateway.NewDownstreamGatewayClient(broker, broker, shardIndex, logger.Named("downstream"))
	go func() {
		for p := range downstream.Inbound() {
			logger.Info("dispatch", zap.String("type", p.Type))
		}
	}()
	if err := downstream.Execute(ctx, ""); err != nil && ctx.Err() == nil {
		logger.Error("downstream gateway client exited", zap.Error(err))
	}
}

// buildRESTRouter wires a ratelimit.Router over *http.Client — the
// programmatic surface applications use to call the chat REST API through
// this process.
func buildRESTRouter(logger *zap.Logger) *ratelimit.Router {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return ratelimit.NewRouter(httpClient, ratelimit.Options{
		Clock:  clock.Real(),
		Logger: logger.Named("router"),
	})
}

// serveAdminSurface exposes /healthz and /status behind the distributed
// admin limiter.
func serveAdminSurface(addr string, limiter adminlimit.Limiter, router *ratelimit.Router) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("method")
		uriTemplate := r.URL.Query().Get("route")
		if method == "" || uriTemplate == "" {
			http.Error(w, "missing method/route query params", http.StatusBadRequest)
			return
		}
		req := chatapi.NewRequest(chatapi.NewRoute(method, uriTemplate))
		status, err := router.Status(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	wrapped := adminlimit.Middleware(mux, &adminlimit.Config{
		Extractor: adminlimit.NewHTTPHeaderExtractor("X-Forwarded-For"),
		Limiter:   limiter,
	})

	telemetry.Logger().Info("admin surface listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, wrapped); err != nil {
		telemetry.Logger().Fatal("admin surface failed", zap.Error(err))
	}
}
