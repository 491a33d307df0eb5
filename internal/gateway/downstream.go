package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DownstreamGatewayClient implements StandardGatewayClient without holding
// a real connection: its inbound comes from a PayloadSource, its outbound
// goes to a PayloadSink, and it maintains a local copy of session id and
// last sequence.
//
// Three topics form its internal payload dispatch graph, each a Topic
// with "keep latest" overflow: receiver, dispatch, sender. The control
// path is request/reply rather than keep-latest: Close registers its own
// waiter so that concurrent Close calls each get the echo that answers
// their own request, instead of racing over a single shared channel.
type DownstreamGatewayClient struct {
	source PayloadSource
	sink   PayloadSink

	shardIndex uint32

	receiver      *Topic[*Payload]
	dispatch      *Topic[*Payload]
	sender        *Topic[*Payload]
	controlSender *Topic[*NodeControl]

	outboundIn chan *Payload

	sessionID atomic.Value // string
	sequence  atomic.Int64

	pendingEchoMu sync.Mutex
	pendingEcho   map[ControlOp][]chan struct{}

	receiverLogger *zap.Logger
	senderLogger   *zap.Logger
}

// NewDownstreamGatewayClient wires source/sink for shardIndex.
func NewDownstreamGatewayClient(source PayloadSource, sink PayloadSink, shardIndex uint32, logger *zap.Logger) *DownstreamGatewayClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &DownstreamGatewayClient{
		source:         source,
		sink:           sink,
		shardIndex:     shardIndex,
		receiver:       NewTopic[*Payload](),
		dispatch:       NewTopic[*Payload](),
		sender:         NewTopic[*Payload](),
		controlSender:  NewTopic[*NodeControl](),
		outboundIn:     make(chan *Payload),
		pendingEcho:    make(map[ControlOp][]chan struct{}),
		receiverLogger: logger.Named("receiver"),
		senderLogger:   logger.Named("sender"),
	}
	d.sessionID.Store("")
	return d
}

// Execute starts the four pipelines and blocks until ctx is cancelled or a
// pipeline errors. url is unused: this client never dials anything.
func (d *DownstreamGatewayClient) Execute(ctx context.Context, url string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 4)
	var wg sync.WaitGroup
	wg.Add(4)

	// Each pipeline logs its own terminal error with its own logger,
	// rather than mixing the receive side's error into the sender's.
	go func() {
		defer wg.Done()
		err := d.source.Receive(ctx, d.handleInboundPayload)
		if err != nil {
			d.receiverLogger.Warn("inbound payload pipeline failed", zap.Error(err))
		}
		errs <- err
	}()

	go func() {
		defer wg.Done()
		go d.pumpOutbound(ctx)
		err := d.sink.Send(ctx, d.sender.C())
		if err != nil {
			d.senderLogger.Warn("outbound payload pipeline failed", zap.Error(err))
		}
		errs <- err
	}()

	go func() {
		defer wg.Done()
		err := d.source.ReceiveControl(ctx, func(c *NodeControl) error {
			d.signalControlEcho(c.Op)
			return nil
		})
		if err != nil {
			d.receiverLogger.Warn("inbound control pipeline failed", zap.Error(err))
		}
		errs <- err
	}()

	go func() {
		defer wg.Done()
		err := d.sink.SendControl(ctx, d.controlSender.C())
		if err != nil {
			d.senderLogger.Warn("outbound control pipeline failed", zap.Error(err))
		}
		errs <- err
	}()

	go func() {
		wg.Wait()
		close(errs)
	}()

	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

// handleInboundPayload is PayloadSource.receive's handler: sequence-track,
// forward to the receiver topic, and (opcode DISPATCH, data non-null) also
// forward to the dispatch topic; a Ready dispatch sets sessionID too.
func (d *DownstreamGatewayClient) handleInboundPayload(p *Payload) error {
	if p.Sequence != nil {
		d.sequence.Store(*p.Sequence)
	}
	if sid, ok := SessionIDFromReady(p); ok {
		d.sessionID.Store(sid)
	}
	d.receiver.Publish(p)
	if p.Op == OpDispatch && len(p.Data) > 0 {
		d.dispatch.Publish(p)
	}
	return nil
}

// pumpOutbound forwards application writes on outboundIn into the sender
// topic's keep-latest semantics.
func (d *DownstreamGatewayClient) pumpOutbound(ctx context.Context) {
	for {
		select {
		case p := <-d.outboundIn:
			d.sender.Publish(p)
		case <-ctx.Done():
			return
		}
	}
}

// Inbound is the application's dispatch stream: DISPATCH payloads only.
func (d *DownstreamGatewayClient) Inbound() <-chan *Payload {
	return d.dispatch.C()
}

// Outbound accepts payloads the application wants relayed upstream.
func (d *DownstreamGatewayClient) Outbound() chan<- *Payload {
	return d.outboundIn
}

// Close realizes a remote close: the leader holds the real connection, so
// the worker requests it over the control topics and awaits the matching
// echo. The echo carries no correlation id, so each call registers its own
// waiter and is matched FIFO against echoes of the same op — concurrent
// Close calls each get their own answer instead of racing over one channel.
func (d *DownstreamGatewayClient) Close(reconnect bool) error {
	op := ControlClose
	if reconnect {
		op = ControlReconnect
	}

	waiter := make(chan struct{})
	d.pendingEchoMu.Lock()
	d.pendingEcho[op] = append(d.pendingEcho[op], waiter)
	d.pendingEchoMu.Unlock()

	// A blocking send rather than Publish: a queued close request must never
	// be overwritten by a concurrent one.
	d.controlSender.ch <- &NodeControl{Op: op, ShardIndex: d.shardIndex}
	<-waiter
	return nil
}

// signalControlEcho wakes the oldest pending Close call waiting on op, if
// any. Extra echoes with no matching waiter are dropped.
func (d *DownstreamGatewayClient) signalControlEcho(op ControlOp) {
	d.pendingEchoMu.Lock()
	defer d.pendingEchoMu.Unlock()
	waiters := d.pendingEcho[op]
	if len(waiters) == 0 {
		return
	}
	close(waiters[0])
	d.pendingEcho[op] = waiters[1:]
}

func (d *DownstreamGatewayClient) SessionID() string { return d.sessionID.Load().(string) }
func (d *DownstreamGatewayClient) Sequence() int64   { return d.sequence.Load() }

// ResponseTime and IsConnected are stubbed: a correct reading needs a
// periodic control-channel heartbeat from the leader that the protocol
// doesn't define yet.
func (d *DownstreamGatewayClient) ResponseTime() time.Duration { return 0 }
func (d *DownstreamGatewayClient) IsConnected() bool           { return true }
