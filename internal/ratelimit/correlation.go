package ratelimit

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
)

// correlation is a Request plus its single-fire completion handle plus a
// shard tag for observability. It is pushed by Router, removed and
// completed by its RequestStream.
type correlation struct {
	id       uuid.UUID
	route    chatapi.Route
	method   string
	uri      string
	body     []byte
	headers  http.Header
	shardTag string
	future   *chatapi.Future[*chatapi.Response]
	retried  bool // user-level retry-once budget (ResponseFunction retry), distinct from automatic 429 re-enqueue
}

func newCorrelation(req *chatapi.Request, shardTag string) (*correlation, error) {
	uri, err := req.URI()
	if err != nil {
		return nil, err
	}
	return &correlation{
		id:       uuid.New(),
		route:    req.Route,
		method:   req.Route.Method,
		uri:      uri,
		body:     req.Body,
		headers:  req.Headers,
		shardTag: shardTag,
		future:   chatapi.NewFuture[*chatapi.Response](),
	}, nil
}
