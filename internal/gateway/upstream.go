package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UpstreamGatewayClient is the leader-side half of the relay: it owns a
// real gateway connection and bridges it to the broker.
type UpstreamGatewayClient struct {
	std    StandardGatewayClient
	sink   PayloadSink
	source PayloadSource
	logger *zap.Logger
}

// NewUpstreamGatewayClient composes std with sink/source.
func NewUpstreamGatewayClient(std StandardGatewayClient, sink PayloadSink, source PayloadSource, logger *zap.Logger) *UpstreamGatewayClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UpstreamGatewayClient{std: std, sink: sink, source: source, logger: logger}
}

// Execute runs three subtasks joined with all-must-succeed semantics: any
// one's terminal error cancels the other two.
func (u *UpstreamGatewayClient) Execute(ctx context.Context, url string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		errs <- u.std.Execute(ctx, url)
	}()

	go func() {
		defer wg.Done()
		errs <- u.sink.Send(ctx, u.std.Inbound())
	}()

	go func() {
		defer wg.Done()
		errs <- u.source.Receive(ctx, func(p *Payload) error {
			select {
			case u.std.Outbound() <- p:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	go func() {
		wg.Wait()
		close(errs)
	}()

	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
			u.logger.Warn("upstream subtask failed, cancelling peers", zap.Error(err))
			cancel()
		}
	}
	return first
}

// Close delegates to the standard client.
func (u *UpstreamGatewayClient) Close(reconnect bool) error {
	return u.std.Close(reconnect)
}

func (u *UpstreamGatewayClient) SessionID() string         { return u.std.SessionID() }
func (u *UpstreamGatewayClient) Sequence() int64            { return u.std.Sequence() }
func (u *UpstreamGatewayClient) ResponseTime() time.Duration { return u.std.ResponseTime() }
func (u *UpstreamGatewayClient) IsConnected() bool          { return u.std.IsConnected() }
