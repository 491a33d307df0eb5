package gateway

import (
	"context"
	"time"
)

// StandardGatewayClient is the external collaborator a leader node wraps:
// whatever owns the real platform gateway connection. UpstreamGatewayClient
// composes one with a PayloadSink/PayloadSource pair; internal/gwclient
// provides the one concrete implementation this repo ships, over a
// gorilla/websocket connection.
type StandardGatewayClient interface {
	// Execute dials url and runs the connection until ctx is cancelled or
	// a terminal error occurs. It owns the lifetime of Inbound/Outbound.
	Execute(ctx context.Context, url string) error

	// Inbound yields every payload read off the real connection.
	Inbound() <-chan *Payload

	// Outbound accepts payloads to be written to the real connection.
	Outbound() chan<- *Payload

	SessionID() string
	Sequence() int64
	ResponseTime() time.Duration
	IsConnected() bool

	Close(reconnect bool) error
}
