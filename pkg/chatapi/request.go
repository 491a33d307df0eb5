package chatapi

import (
	"encoding/json"
	"net/http"
)

// Request is an immutable description of one REST call: a route template,
// the params to resolve it, an optional body, and headers. The router
// completes every request with a raw *Response; the caller's expected
// shape is realized at the edge by Decode, not by the router itself — Go
// has no way to erase a type parameter into a single per-bucket queue, so
// the router deals only in *Response and callers decode into whatever
// shape they expect.
type Request struct {
	Route   Route
	Params  []string
	Body    []byte
	Headers http.Header
}

// NewRequest builds a Request for route, resolved with params in the
// route's declared placeholder order.
func NewRequest(route Route, params ...string) *Request {
	return &Request{Route: route, Params: params, Headers: make(http.Header)}
}

// WithBody attaches a request body.
func (r *Request) WithBody(body []byte) *Request {
	r.Body = body
	return r
}

// WithHeader sets a request header.
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers.Set(key, value)
	return r
}

// URI resolves the route template against Params.
func (r *Request) URI() (string, error) {
	return r.Route.Compile(r.Params...)
}

// BucketKey computes the bucket this request falls into.
func (r *Request) BucketKey() BucketKey {
	return ComputeBucketKey(r.Route, r.Params)
}

// Response is what a RequestStream completes a caller's Future with. An
// Empty response (no StatusCode) models the "empty success" a transformer
// like EmptyIfNotFound produces from a 404.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Empty      bool
}

// Decode unmarshals resp.Body as JSON into a T. It is the caller's edge for
// realizing the response into an expected shape — the router never calls
// this itself.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || resp.Empty || len(resp.Body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, err
	}
	return out, nil
}
