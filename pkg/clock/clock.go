// Package clock abstracts monotonic and wall-clock time so that delay
// computations in the rate limiter and gateway relay can be driven
// deterministically in tests by injecting a `now func() time.Time` closure.
package clock

import "time"

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Real returns a Clock backed by time.Now.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Func adapts a plain function into a Clock, matching the `now func()
// time.Time` parameter accepted by NewTokenBucketStrategy in
// internal/ratelimit/strategy.go.
type Func func() time.Time

func (f Func) Now() time.Time { return f() }
