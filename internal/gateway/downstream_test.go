package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	payloads chan *Payload
	controls chan *NodeControl
}

func newFakeSource() *fakeSource {
	return &fakeSource{payloads: make(chan *Payload, 4), controls: make(chan *NodeControl, 4)}
}

func (f *fakeSource) Receive(ctx context.Context, handler func(*Payload) error) error {
	for {
		select {
		case p := <-f.payloads:
			if err := handler(p); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeSource) ReceiveControl(ctx context.Context, handler func(*NodeControl) error) error {
	for {
		select {
		case c := <-f.controls:
			if err := handler(c); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type fakeSink struct {
	mu           sync.Mutex
	sentPayloads []*Payload
	sentControls []*NodeControl
}

func (f *fakeSink) Send(ctx context.Context, payloads <-chan *Payload) error {
	for {
		select {
		case p := <-payloads:
			f.mu.Lock()
			f.sentPayloads = append(f.sentPayloads, p)
			f.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeSink) SendControl(ctx context.Context, controls <-chan *NodeControl) error {
	for {
		select {
		case c := <-controls:
			f.mu.Lock()
			f.sentControls = append(f.sentControls, c)
			f.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeSink) lastControl() *NodeControl {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sentControls) == 0 {
		return nil
	}
	return f.sentControls[len(f.sentControls)-1]
}

func (f *fakeSink) payloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sentPayloads)
}

func (f *fakeSink) payloadCountControl() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sentControls)
}

func int64Ptr(v int64) *int64 { return &v }

func TestDownstreamGatewayClient_CapturesSessionIDAndSequenceFromReady(t *testing.T) {
	source := newFakeSource()
	sink := &fakeSink{}
	d := NewDownstreamGatewayClient(source, sink, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Execute(ctx, "")

	readyData, err := json.Marshal(map[string]string{"session_id": "abc123"})
	require.NoError(t, err)
	source.payloads <- &Payload{Op: OpDispatch, Type: "READY", Sequence: int64Ptr(7), Data: readyData}

	assert.Eventually(t, func() bool {
		return d.SessionID() == "abc123" && d.Sequence() == 7
	}, time.Second, 5*time.Millisecond)
}

func TestDownstreamGatewayClient_DispatchPayloadsReachInbound(t *testing.T) {
	source := newFakeSource()
	sink := &fakeSink{}
	d := NewDownstreamGatewayClient(source, sink, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Execute(ctx, "")

	msgData, err := json.Marshal(map[string]string{"content": "hi"})
	require.NoError(t, err)
	source.payloads <- &Payload{Op: OpDispatch, Type: "MESSAGE_CREATE", Data: msgData}

	select {
	case p := <-d.Inbound():
		assert.Equal(t, "MESSAGE_CREATE", p.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a dispatch payload on Inbound()")
	}
}

func TestDownstreamGatewayClient_HeartbeatsAreNotDispatched(t *testing.T) {
	source := newFakeSource()
	sink := &fakeSink{}
	d := NewDownstreamGatewayClient(source, sink, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Execute(ctx, "")

	source.payloads <- &Payload{Op: OpHeartbeat, Sequence: int64Ptr(1)}

	select {
	case p := <-d.Inbound():
		t.Fatalf("heartbeat must not reach the dispatch topic, got %+v", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDownstreamGatewayClient_OutboundForwardsToSink(t *testing.T) {
	source := newFakeSource()
	sink := &fakeSink{}
	d := NewDownstreamGatewayClient(source, sink, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Execute(ctx, "")

	d.Outbound() <- &Payload{Op: OpIdentify}

	assert.Eventually(t, func() bool {
		return sink.payloadCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDownstreamGatewayClient_CloseAwaitsMatchingEcho(t *testing.T) {
	source := newFakeSource()
	sink := &fakeSink{}
	d := NewDownstreamGatewayClient(source, sink, 3, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Execute(ctx, "")

	closeDone := make(chan error, 1)
	go func() { closeDone <- d.Close(false) }()

	// Wait for the CLOSE control to reach the sink, then simulate the
	// leader's echo arriving back on the control-receive pipeline.
	require.Eventually(t, func() bool {
		return sink.lastControl() != nil && sink.lastControl().Op == ControlClose
	}, time.Second, 5*time.Millisecond)
	source.controls <- &NodeControl{Op: ControlClose, ShardIndex: 3}

	select {
	case err := <-closeDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the matching echo arrived")
	}
}

func TestDownstreamGatewayClient_ConcurrentCloseCallsEachGetTheirOwnEcho(t *testing.T) {
	source := newFakeSource()
	sink := &fakeSink{}
	d := NewDownstreamGatewayClient(source, sink, 3, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Execute(ctx, "")

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- d.Close(false) }()
	go func() { second <- d.Close(false) }()

	// Both calls queue their own CLOSE request; wait until the sink has
	// observed both before answering with two separate echoes.
	require.Eventually(t, func() bool {
		return sink.payloadCountControl() == 2
	}, time.Second, 5*time.Millisecond)

	source.controls <- &NodeControl{Op: ControlClose, ShardIndex: 3}
	source.controls <- &NodeControl{Op: ControlClose, ShardIndex: 3}

	for i := 0; i < 2; i++ {
		select {
		case err := <-first:
			assert.NoError(t, err)
			first = nil
		case err := <-second:
			assert.NoError(t, err)
			second = nil
		case <-time.After(time.Second):
			t.Fatal("closing twice must resolve both calls, one echo each")
		}
	}
}
