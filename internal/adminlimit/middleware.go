package adminlimit

import (
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/internal/telemetry"
)

const (
	headerMaxRequests = "X-RateLimit-Admin-Max-Requests"
	headerState       = "X-RateLimit-Admin-State"
	headerRetryAfter  = "X-RateLimit-Admin-Retry-After"
)

// Config configures the admin-surface rate-limiting middleware.
type Config struct {
	Extractor Extractor
	Limiter   Limiter
}

type handler struct {
	next   http.Handler
	config *Config
}

// Middleware wraps next, rejecting requests the configured Limiter denies
// and tagging every response with the limiter's state headers.
func Middleware(next http.Handler, config *Config) http.Handler {
	return &handler{next: next, config: config}
}

func (h *handler) writeResponse(w http.ResponseWriter, status int, msg string, args ...interface{}) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(fmt.Sprintf(msg, args...))); err != nil {
		telemetry.Logger().Warn("adminlimit: failed to write response body", zap.Error(err))
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, err := h.config.Extractor.Extract(r)
	if err != nil {
		h.writeResponse(w, http.StatusBadRequest, "failed to extract rate limiting key: %v", err)
		return
	}

	result, err := h.config.Limiter.Run(r.Context(), &Request{Key: key, Surface: r.URL.Path})
	if err != nil {
		h.writeResponse(w, http.StatusInternalServerError, "rate limiting check failed: %v", err)
		return
	}

	w.Header().Set(headerMaxRequests, strconv.FormatUint(result.RequestLimit, 10))
	w.Header().Set(headerState, result.State.String())
	w.Header().Set(headerRetryAfter, strconv.FormatUint(result.RemainingTimeSec, 10))

	if result.State == Deny {
		h.writeResponse(w, http.StatusTooManyRequests, "too many requests to the admin surface, slow down")
		return
	}

	h.next.ServeHTTP(w, r)
}
