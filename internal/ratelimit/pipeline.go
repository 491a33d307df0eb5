package ratelimit

import (
	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
)

// Signal is returned alongside a transformed response to tell the
// RequestStream what to do next.
type Signal int

const (
	// SignalNone means: deliver resp/err to the caller as-is.
	SignalNone Signal = iota
	// SignalRetry means: re-enqueue this correlation at the head of its
	// stream's queue, once.
	SignalRetry
)

// ResponseFunction is a cross-cutting response post-processor, applied in
// list order to every response a RequestStream produces before the
// caller's Future is completed.
type ResponseFunction func(route chatapi.Route, resp *chatapi.Response, err error) (*chatapi.Response, error, Signal)

// Pipeline is an ordered list of ResponseFunctions.
type Pipeline []ResponseFunction

// Apply runs every function in order. A SignalRetry from any function
// stops the chain immediately and returns to the caller — a transformer
// earlier in the list that already converted the response (e.g. swallowed
// a 404) shadows a later retry-on-404.
func (p Pipeline) Apply(route chatapi.Route, resp *chatapi.Response, err error) (*chatapi.Response, error, Signal) {
	for _, fn := range p {
		var sig Signal
		resp, err, sig = fn(route, resp, err)
		if sig == SignalRetry {
			return resp, err, sig
		}
	}
	return resp, err, SignalNone
}

// EmptyIfNotFound converts a 404 from a matching route into an empty
// success. With no matchers it applies to every route.
func EmptyIfNotFound(matchers ...chatapi.RouteMatcher) ResponseFunction {
	return EmptyOnErrorStatus(combineOrAny(matchers), 404)
}

// EmptyOnErrorStatus converts any of the given statuses from a matching
// route into an empty success.
func EmptyOnErrorStatus(matcher chatapi.RouteMatcher, statuses ...int) ResponseFunction {
	if matcher == nil {
		matcher = chatapi.AnyRoute()
	}
	set := toStatusSet(statuses)
	return func(route chatapi.Route, resp *chatapi.Response, err error) (*chatapi.Response, error, Signal) {
		if !matcher(route) || resp == nil {
			return resp, err, SignalNone
		}
		if _, ok := set[resp.StatusCode]; ok {
			return &chatapi.Response{Headers: resp.Headers, Empty: true}, nil, SignalNone
		}
		return resp, err, SignalNone
	}
}

// RetryOnceOnErrorStatus signals a retry on the first failing response for
// a correlation matching statuses. The RequestStream enforces the "once"
// part — the pipeline itself is stateless, the retry counter lives on the
// correlation, not the stream.
func RetryOnceOnErrorStatus(matcher chatapi.RouteMatcher, statuses ...int) ResponseFunction {
	if matcher == nil {
		matcher = chatapi.AnyRoute()
	}
	set := toStatusSet(statuses)
	return func(route chatapi.Route, resp *chatapi.Response, err error) (*chatapi.Response, error, Signal) {
		if !matcher(route) || resp == nil {
			return resp, err, SignalNone
		}
		if _, ok := set[resp.StatusCode]; ok {
			return resp, err, SignalRetry
		}
		return resp, err, SignalNone
	}
}

func combineOrAny(matchers []chatapi.RouteMatcher) chatapi.RouteMatcher {
	if len(matchers) == 0 {
		return chatapi.AnyRoute()
	}
	return chatapi.MatchAnyOf(matchers...)
}

func toStatusSet(statuses []int) map[int]struct{} {
	set := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}
