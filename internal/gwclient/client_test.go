package gwclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/internal/gateway"
)

var upgrader = websocket.Upgrader{}

// newEchoServer upgrades every connection and echoes back whatever it
// reads, unchanged; tests that assert sequence tracking set the sequence
// on the frame they send.
func newEchoServer(t *testing.T) string {
	t.Helper()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClient_DialSendsAndReceivesPayloads(t *testing.T) {
	url := newEchoServer(t)
	c := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	execErr := make(chan error, 1)
	go func() { execErr <- c.Execute(ctx, url) }()

	require.Eventually(t, func() bool { return c.IsConnected() }, time.Second, 5*time.Millisecond)

	seq := int64(1)
	c.Outbound() <- &gateway.Payload{Op: gateway.OpDispatch, Type: "MESSAGE_CREATE", Sequence: &seq}

	select {
	case p := <-c.Inbound():
		assert.Equal(t, "MESSAGE_CREATE", p.Type)
		assert.Equal(t, int64(1), c.Sequence())
	case <-time.After(time.Second):
		t.Fatal("expected the echoed payload back on Inbound()")
	}

	cancel()
	select {
	case <-execErr:
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after context cancellation")
	}
}

func TestClient_CapturesSessionIDFromReady(t *testing.T) {
	url := newEchoServer(t)
	c := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Execute(ctx, url)

	require.Eventually(t, func() bool { return c.IsConnected() }, time.Second, 5*time.Millisecond)

	c.Outbound() <- &gateway.Payload{Op: gateway.OpDispatch, Type: "READY", Data: []byte(`{"session_id":"xyz"}`)}

	select {
	case <-c.Inbound():
	case <-time.After(time.Second):
		t.Fatal("expected the echoed READY payload back")
	}
	assert.Equal(t, "xyz", c.SessionID())
}
