// Package adminlimit protects the admin/status HTTP surface exposed by a
// fleet of router-gateway replicas behind one shared, Redis-backed limit.
package adminlimit

import "context"

// Request identifies one admin-surface call: the caller being limited
// (typically derived from an HTTP header by an Extractor) and the surface
// being called (the admin route path). Surface lets one limiter instance
// govern several admin endpoints without their budgets bleeding into each
// other.
type Request struct {
	Key     string
	Surface string
}

// State is a limiter verdict.
type State int

const (
	Deny State = iota
	Allow
)

func (s State) String() string {
	if s == Allow {
		return "Allow"
	}
	return "Deny"
}

// Result reports a limiter's verdict and the information needed to build
// rate-limit response headers.
type Result struct {
	State            State
	RequestLimit     uint64
	RemainingTimeSec uint64
}

// Limiter is the admin-surface rate-limiting strategy.
type Limiter interface {
	Run(ctx context.Context, req *Request) (*Result, error)
}
