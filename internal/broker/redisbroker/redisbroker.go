// Package redisbroker implements gateway.PayloadSink and gateway.PayloadSource
// over Redis Pub/Sub, via github.com/redis/go-redis/v9. Two channels carry
// traffic: one for payloads, one for control messages, matching the
// relay's "payload" and "control" topics one-to-one.
package redisbroker

import (
	"bytes"
	"context"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lowc1012/chat-gateway-router/internal/gateway"
	"github.com/lowc1012/chat-gateway-router/pkg/chatapi"
)

// Broker is a gateway.PayloadSink and gateway.PayloadSource backed by a
// single Redis connection and a pair of pub/sub channels.
type Broker struct {
	client         *redis.Client
	payloadChannel string
	controlChannel string
	logger         *zap.Logger
	compressed     bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithCompression zlib-compresses every published frame. Off by default:
// most deployments run the broker on the same network as the relay nodes
// and the payloads are already small JSON envelopes; this exists for large
// dispatch frames (guild create on a big server, for instance).
func WithCompression() Option {
	return func(b *Broker) { b.compressed = true }
}

// WithLogger attaches a logger for dropped/malformed frames.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// New creates a Broker. payloadChannel and controlChannel are typically
// partitioned per shard via gateway.PartitionKey.
func New(client *redis.Client, payloadChannel, controlChannel string, opts ...Option) *Broker {
	b := &Broker{
		client:         client,
		payloadChannel: payloadChannel,
		controlChannel: controlChannel,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) compress(raw []byte) ([]byte, error) {
	if !b.compressed {
		return raw, nil
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Broker) decompress(raw []byte) ([]byte, error) {
	if !b.compressed {
		return raw, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Send publishes every payload read off payloads to the payload channel
// until it closes or ctx is cancelled.
func (b *Broker) Send(ctx context.Context, payloads <-chan *gateway.Payload) error {
	for {
		select {
		case p, ok := <-payloads:
			if !ok {
				return nil
			}
			if err := publish(ctx, b, b.payloadChannel, p, gateway.EncodePayload); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SendControl is Send's counterpart for NodeControl messages.
func (b *Broker) SendControl(ctx context.Context, controls <-chan *gateway.NodeControl) error {
	for {
		select {
		case c, ok := <-controls:
			if !ok {
				return nil
			}
			if err := publish(ctx, b, b.controlChannel, c, gateway.EncodeControl); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func publish[T any](ctx context.Context, b *Broker, channel string, v T, encode func(T) ([]byte, error)) error {
	raw, err := encode(v)
	if err != nil {
		b.logger.Warn("dropping unencodable frame", zap.String("channel", channel), zap.Error(err))
		return nil
	}
	wire, err := b.compress(raw)
	if err != nil {
		return &chatapi.BrokerTransportError{Err: err}
	}
	if err := b.client.Publish(ctx, channel, wire).Err(); err != nil {
		return &chatapi.BrokerTransportError{Err: err}
	}
	return nil
}

// Receive subscribes to the payload channel and invokes handler for each
// message until the subscription ends or ctx is cancelled.
func (b *Broker) Receive(ctx context.Context, handler func(*gateway.Payload) error) error {
	sub := b.client.Subscribe(ctx, b.payloadChannel)
	defer sub.Close()
	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			raw, err := b.decompress([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping frame with bad compression envelope", zap.Error(err))
				continue
			}
			p, err := gateway.DecodePayload(raw)
			if err != nil {
				b.logger.Warn("dropping malformed payload frame", zap.Error(err))
				continue
			}
			if err := handler(p); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ReceiveControl is Receive's counterpart for the control channel.
func (b *Broker) ReceiveControl(ctx context.Context, handler func(*gateway.NodeControl) error) error {
	sub := b.client.Subscribe(ctx, b.controlChannel)
	defer sub.Close()
	for {
		select {
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			raw, err := b.decompress([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn("dropping control frame with bad compression envelope", zap.Error(err))
				continue
			}
			c, err := gateway.DecodeControl(raw)
			if err != nil {
				b.logger.Warn("dropping malformed control frame", zap.Error(err))
				continue
			}
			if err := handler(c); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
