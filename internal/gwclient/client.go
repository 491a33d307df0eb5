// Package gwclient provides the one concrete implementation this repo
// ships of gateway.StandardGatewayClient: a minimal websocket connection
// with no heartbeat and no resume. Those are explicitly out of scope —
// this client is a home for UpstreamGatewayClient to wrap, not a full
// gateway driver.
package gwclient

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/internal/gateway"
)

// Client dials a single websocket URL and pumps gateway.Payload frames in
// both directions.
type Client struct {
	logger *zap.Logger

	inbound  chan *gateway.Payload
	outbound chan *gateway.Payload

	sessionID atomic.Value // string
	sequence  atomic.Int64
	connected atomic.Bool
	latency   atomic.Int64 // time.Duration, nanoseconds

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a Client. Call Execute to dial and start pumping.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		logger:   logger,
		inbound:  make(chan *gateway.Payload),
		outbound: make(chan *gateway.Payload),
	}
	c.sessionID.Store("")
	return c
}

// Execute dials url and runs the read/write pumps until ctx is cancelled
// or the connection fails.
func (c *Client) Execute(ctx context.Context, url string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, http.Header{})
	cancel()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	defer func() {
		c.connected.Store(false)
		conn.Close()
	}()

	errs := make(chan error, 2)
	go func() { errs <- c.readPump(ctx) }()
	go func() { errs <- c.writePump(ctx) }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readPump(ctx context.Context) error {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		sent := time.Now()
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.latency.Store(int64(time.Since(sent)))

		p, err := gateway.DecodePayload(raw)
		if err != nil {
			c.logger.Warn("dropping malformed gateway frame", zap.Error(err))
			continue
		}
		if p.Sequence != nil {
			c.sequence.Store(*p.Sequence)
		}
		if sid, ok := gateway.SessionIDFromReady(p); ok {
			c.sessionID.Store(sid)
		}

		select {
		case c.inbound <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) writePump(ctx context.Context) error {
	for {
		select {
		case p := <-c.outbound:
			raw, err := gateway.EncodePayload(p)
			if err != nil {
				c.logger.Warn("dropping unencodable outbound frame", zap.Error(err))
				continue
			}
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) Inbound() <-chan *gateway.Payload  { return c.inbound }
func (c *Client) Outbound() chan<- *gateway.Payload { return c.outbound }

func (c *Client) SessionID() string          { return c.sessionID.Load().(string) }
func (c *Client) Sequence() int64             { return c.sequence.Load() }
func (c *Client) ResponseTime() time.Duration { return time.Duration(c.latency.Load()) }
func (c *Client) IsConnected() bool           { return c.connected.Load() }

// Close closes the underlying connection. reconnect only affects the close
// code sent, there being no resume support to act on it.
func (c *Client) Close(reconnect bool) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	code := websocket.CloseNormalClosure
	if reconnect {
		code = websocket.CloseServiceRestart
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	return conn.Close()
}
