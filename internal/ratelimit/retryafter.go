package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// is429Global reports whether a 429 response carries the global rate-limit
// flag, either via the X-RateLimit-Global header or a "global": true JSON
// body field.
func is429Global(resp *http.Response, body []byte) bool {
	if v := strings.ToLower(strings.TrimSpace(resp.Header.Get("X-RateLimit-Global"))); v == "true" {
		return true
	}
	var payload struct {
		Global bool `json:"global"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		return payload.Global
	}
	return false
}

// retryAfterDuration extracts the wait duration from a 429 response. The
// Retry-After header is seconds per HTTP convention but some endpoints of
// this family have sent milliseconds, so the header value is disambiguated
// by magnitude/decimal point. The JSON body's retry_after field has no
// such ambiguity: it is always milliseconds, and is parsed as such
// directly.
func retryAfterDuration(resp *http.Response, body []byte) time.Duration {
	if h := strings.TrimSpace(resp.Header.Get("Retry-After")); h != "" {
		if d, ok := parseRetryAfterValue(h); ok {
			return d
		}
	}
	var payload struct {
		RetryAfter json.Number `json:"retry_after"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil && payload.RetryAfter != "" {
		if ms, err := payload.RetryAfter.Float64(); err == nil {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}
	return 0
}

// parseRetryAfterValue interprets a numeric Retry-After-shaped string.
// A value with a decimal point is fractional seconds. An integral value
// at or above the threshold is treated as milliseconds (no sane rate-limit wait
// is measured in thousands of seconds); otherwise it is whole seconds.
const msVsSecondsThreshold = 1000

func parseRetryAfterValue(raw string) (time.Duration, bool) {
	if strings.Contains(raw, ".") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(f * float64(time.Second)), true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	if n >= msVsSecondsThreshold {
		return time.Duration(n) * time.Millisecond, true
	}
	return time.Duration(n) * time.Second, true
}
