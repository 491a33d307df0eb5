package ratelimit

import "net/http"

// Doer is the minimal HTTP client surface the router needs. *http.Client
// satisfies it; tests substitute a stub. Per-request timeouts are the
// Doer's responsibility — the router imposes none.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
