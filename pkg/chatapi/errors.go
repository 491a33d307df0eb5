package chatapi

import "fmt"

// RateLimitKind distinguishes bucket-local from global 429s.
type RateLimitKind int

const (
	RateLimitBucket RateLimitKind = iota
	RateLimitGlobal
)

func (k RateLimitKind) String() string {
	if k == RateLimitGlobal {
		return "global"
	}
	return "bucket"
}

// TransportError wraps a failure that occurred before any HTTP response was
// received (connect, TLS, DNS). Never retried by the router itself.
type TransportError struct {
	Route Route
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("chatapi: transport error for %s %s: %v", e.Route.Method, e.Route.URITemplate, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError is a response that arrived with a non-2xx status and was
// not converted by the response transformer pipeline.
type HTTPStatusError struct {
	Route      Route
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chatapi: %s %s returned status %d", e.Route.Method, e.Route.URITemplate, e.StatusCode)
}

// RateLimitedError is raised internally when a 429 arrives; it is always
// handled by the RequestStream (re-enqueue + delay, or global trip) and is
// never surfaced to a caller's Future.
type RateLimitedError struct {
	Kind       RateLimitKind
	RetryAfter int64 // milliseconds
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("chatapi: rate limited (%s), retry after %dms", e.Kind, e.RetryAfter)
}

// CancelledError is returned to a caller whose Future was cancelled while
// its correlation was still queued.
type CancelledError struct {
	Route Route
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("chatapi: request to %s %s cancelled", e.Route.Method, e.Route.URITemplate)
}

// BrokerTransportError wraps a PayloadSink/PayloadSource failure. It
// terminates the affected gateway client and is surfaced to its caller for
// retry/restart.
type BrokerTransportError struct {
	Err error
}

func (e *BrokerTransportError) Error() string {
	return fmt.Sprintf("chatapi: broker transport error: %v", e.Err)
}

func (e *BrokerTransportError) Unwrap() error { return e.Err }

// ProtocolViolationError describes a payload that could not be parsed into
// a GatewayPayload. It is logged and dropped; it never terminates the
// relay pipeline, preserving liveness.
type ProtocolViolationError struct {
	Raw []byte
	Err error
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("chatapi: protocol violation: %v", e.Err)
}

func (e *ProtocolViolationError) Unwrap() error { return e.Err }

// UnknownBucketError is raised synchronously by Router.Status for a route
// that has never had a RequestStream created for it.
type UnknownBucketError struct {
	Key BucketKey
}

func (e *UnknownBucketError) Error() string {
	return fmt.Sprintf("chatapi: unknown bucket %s/%s", e.Key.Template, e.Key.Major)
}
