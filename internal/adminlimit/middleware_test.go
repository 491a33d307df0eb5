package adminlimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	result *Result
	err    error

	lastReq *Request
}

func (f *fakeLimiter) Run(ctx context.Context, req *Request) (*Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func TestMiddleware_AllowsAndSetsHeaders(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	mw := Middleware(next, &Config{
		Extractor: NewHTTPHeaderExtractor("X-Forwarded-For"),
		Limiter:   &fakeLimiter{result: &Result{State: Allow, RequestLimit: 20}},
	})

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, r)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "20", w.Header().Get(headerMaxRequests))
	assert.Equal(t, "Allow", w.Header().Get(headerState))
}

func TestMiddleware_ScopesLimiterRequestBySurface(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	limiter := &fakeLimiter{result: &Result{State: Allow}}

	mw := Middleware(next, &Config{
		Extractor: NewHTTPHeaderExtractor("X-Forwarded-For"),
		Limiter:   limiter,
	})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	mw.ServeHTTP(httptest.NewRecorder(), r)

	require.NotNil(t, limiter.lastReq)
	assert.Equal(t, "10.0.0.1", limiter.lastReq.Key)
	assert.Equal(t, "/healthz", limiter.lastReq.Surface)
}

func TestMiddleware_DeniesWithoutCallingNext(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not run when the limiter denies")
	})

	mw := Middleware(next, &Config{
		Extractor: NewHTTPHeaderExtractor("X-Forwarded-For"),
		Limiter:   &fakeLimiter{result: &Result{State: Deny, RemainingTimeSec: 3}},
	})

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3", w.Header().Get(headerRetryAfter))
}

func TestMiddleware_ExtractorErrorReturnsBadRequest(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next must not run when extraction fails")
	})

	mw := Middleware(next, &Config{
		Extractor: NewHTTPHeaderExtractor("X-Forwarded-For"),
		Limiter:   &fakeLimiter{},
	})

	r := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, r)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
