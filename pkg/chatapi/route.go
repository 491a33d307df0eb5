// Package chatapi holds the value types shared between the REST router and
// its callers: routes, bucket keys, requests, futures, and the error
// taxonomy. It has no dependency on the rate-limiting or gateway-relay
// engines in internal/ — those consume these types, they don't define them.
package chatapi

import (
	"strings"
)

// Route is a method + URI template pair, with an optional major parameter
// used for bucket identification. The template uses "{name}" placeholders.
type Route struct {
	Method         string
	URITemplate    string
	MajorParamName string // empty if this route has no major parameter
}

// NewRoute builds a Route with no major parameter.
func NewRoute(method, uriTemplate string) Route {
	return Route{Method: method, URITemplate: uriTemplate}
}

// WithMajorParam returns a copy of r carrying the named major parameter.
func (r Route) WithMajorParam(name string) Route {
	r.MajorParamName = name
	return r
}

// HasMajorParam reports whether this route is keyed by a top-level resource.
func (r Route) HasMajorParam() bool {
	return r.MajorParamName != ""
}

// placeholder returns the "{name}" token for a parameter.
func placeholder(name string) string {
	return "{" + name + "}"
}

// Compile substitutes named params into the URI template, in order of
// appearance, returning the resolved URI. params must supply a value for
// every "{name}" placeholder the template declares, in the template's
// declaration order.
func (r Route) Compile(params ...string) (string, error) {
	uri := r.URITemplate
	names := r.paramNames()
	if len(params) != len(names) {
		return "", &RouteError{Route: r, Reason: "parameter count mismatch"}
	}
	for i, name := range names {
		uri = strings.Replace(uri, placeholder(name), params[i], 1)
	}
	return uri, nil
}

// paramNames extracts "{name}" tokens from the URI template, in order.
func (r Route) paramNames() []string {
	var names []string
	rest := r.URITemplate
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		names = append(names, rest[start+1:start+end])
		rest = rest[start+end+1:]
	}
	return names
}

// majorParamValue extracts the value bound to MajorParamName, given the
// same ordered params used in Compile.
func (r Route) majorParamValue(params []string) (string, bool) {
	if !r.HasMajorParam() {
		return "", false
	}
	for i, name := range r.paramNames() {
		if name == r.MajorParamName && i < len(params) {
			return params[i], true
		}
	}
	return "", false
}

// RouteError describes a failure to compile or match a Route.
type RouteError struct {
	Route  Route
	Reason string
}

func (e *RouteError) Error() string {
	return "chatapi: route " + e.Route.Method + " " + e.Route.URITemplate + ": " + e.Reason
}

// MessageDelete is the single route the remote service buckets per-HTTP-method
// rather than per-route-template.
var MessageDelete = NewRoute("DELETE", "/channels/{channel.id}/messages/{message.id}").WithMajorParam("channel.id")

// ReactionCreate is self-limited by the client at a fixed rate rather than
// governed by response headers.
var ReactionCreate = NewRoute("PUT", "/channels/{channel.id}/messages/{message.id}/reactions/{emoji}/@me").WithMajorParam("channel.id")

// noMajorParameter is the sentinel major-parameter value for routes that
// have none.
const noMajorParameter = "-"

// BucketKey identifies a rate-limit bucket: a (route template, major
// parameter) pair. Equality and hashing are structural, so it is safe to
// use directly as a map key.
type BucketKey struct {
	Template string
	Major    string
}

// ComputeBucketKey derives the BucketKey for a route resolved with params.
// MessageDelete gets its HTTP method prepended to the template, since the
// remote service assigns it a dedicated bucket per method.
func ComputeBucketKey(route Route, params []string) BucketKey {
	template := route.URITemplate
	if route.Method == MessageDelete.Method && route.URITemplate == MessageDelete.URITemplate {
		template = route.Method + " " + template
	}
	major, ok := route.majorParamValue(params)
	if !ok {
		major = noMajorParameter
	}
	return BucketKey{Template: template, Major: major}
}

// RouteMatcher predicates over Routes, used only by the ResponseFunction
// pipeline.
type RouteMatcher func(Route) bool

// AnyRoute matches every route.
func AnyRoute() RouteMatcher {
	return func(Route) bool { return true }
}

// MatchRoute matches exactly one route (method + template).
func MatchRoute(route Route) RouteMatcher {
	return func(r Route) bool {
		return r.Method == route.Method && r.URITemplate == route.URITemplate
	}
}

// MatchAnyOf matches if any of the given matchers match.
func MatchAnyOf(matchers ...RouteMatcher) RouteMatcher {
	return func(r Route) bool {
		for _, m := range matchers {
			if m(r) {
				return true
			}
		}
		return false
	}
}
