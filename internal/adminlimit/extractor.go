package adminlimit

import (
	"fmt"
	"net/http"
	"strings"
)

// Extractor pulls the key a request is rate-limited by out of an HTTP
// request — a header value, in practice, since that's guaranteed present
// without touching the body.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type httpHeaderExtractor struct {
	headers []string
}

// NewHTTPHeaderExtractor builds an Extractor that joins the named headers
// into the limiter key. Use headers that are unique per caller.
//
// X-Forwarded-For gets special handling: the admin surface sits behind a
// load balancer shared by the whole router-gateway fleet, so the header
// arrives as a comma-separated hop chain (client, then every intermediate
// proxy). Only the first hop — the original caller — is used; joining the
// whole chain would let one caller dodge its bucket just by being routed
// through a different set of intermediate hops on a later request.
func NewHTTPHeaderExtractor(headers ...string) Extractor {
	return &httpHeaderExtractor{headers: headers}
}

func (h *httpHeaderExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))
	for _, key := range h.headers {
		value := strings.TrimSpace(r.Header.Get(key))
		if value == "" {
			return "", fmt.Errorf("adminlimit: header %q must have a value set", key)
		}
		if strings.EqualFold(key, "X-Forwarded-For") {
			if first, _, ok := strings.Cut(value, ","); ok {
				value = strings.TrimSpace(first)
			}
		}
		values = append(values, value)
	}
	return strings.Join(values, "-"), nil
}
