package gateway

import "context"

// PayloadSink publishes framed payloads and control messages to an
// external broker's "payload" and "control" topics. Both operations
// consume a lazy, possibly infinite channel and complete when it closes;
// a transport error terminates with that error. Ordering within one call
// is preserved; the core makes no guarantee across calls.
type PayloadSink interface {
	Send(ctx context.Context, payloads <-chan *Payload) error
	SendControl(ctx context.Context, controls <-chan *NodeControl) error
}

// PayloadSource delivers payloads and control messages from an external
// broker. For each message received, handler is invoked; the outer call
// completes when the underlying subscription ends. Delivery is
// best-effort: duplicates are tolerated by consumers, sequence gaps are
// tolerated.
type PayloadSource interface {
	Receive(ctx context.Context, handler func(*Payload) error) error
	ReceiveControl(ctx context.Context, handler func(*NodeControl) error) error
}
