package core

import (
	"context"
	"sync"

	"github.com/confplane/signaling-core/internal/domain"
)

// fakeChannel is a minimal Channel for registry tests: it records every
// payload sent and can be toggled closed.
type fakeChannel struct {
	mu     sync.Mutex
	sent   []any
	open   bool
	failOn int // if >0, the Nth Send call fails
	calls  int
}

func newFakeChannel() *fakeChannel { return &fakeChannel{open: true} }

func (c *fakeChannel) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failOn > 0 && c.calls == c.failOn {
		return errSendFailed
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *fakeChannel) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeEngine is a minimal, stateful MediaEngine used to verify that the
// registries invoke the right close operations — it records every id it
// was asked to close rather than modeling real transport/producer state.
type fakeEngine struct {
	mu              sync.Mutex
	closedTransport []domain.TransportID
	closedProducer  []domain.ProducerID
	closedConsumer  []domain.ConsumerID
	closedClient    []domain.ClientID
	failClose       bool
}

func (e *fakeEngine) CreateWebRTCTransport(ctx context.Context, p CreateTransportParams) (TransportCreated, error) {
	return TransportCreated{}, nil
}
func (e *fakeEngine) ConnectTransport(ctx context.Context, p ConnectTransportParams) error { return nil }
func (e *fakeEngine) CloseTransport(ctx context.Context, id domain.TransportID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedTransport = append(e.closedTransport, id)
	if e.failClose {
		return errSendFailed
	}
	return nil
}
func (e *fakeEngine) CreateProducer(ctx context.Context, p CreateProducerParams) (ProducedResult, error) {
	return ProducedResult{}, nil
}
func (e *fakeEngine) CreateConsumer(ctx context.Context, p CreateConsumerParams) (ConsumedResult, error) {
	return ConsumedResult{}, nil
}
func (e *fakeEngine) CloseProducer(ctx context.Context, id domain.ProducerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedProducer = append(e.closedProducer, id)
	return nil
}
func (e *fakeEngine) CloseConsumer(ctx context.Context, id domain.ConsumerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedConsumer = append(e.closedConsumer, id)
	return nil
}
func (e *fakeEngine) CloseClient(ctx context.Context, id domain.ClientID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closedClient = append(e.closedClient, id)
	return nil
}
func (e *fakeEngine) RoomsOverview() RoomOverview   { return RoomOverview{} }
func (e *fakeEngine) Metrics() EngineMetrics        { return EngineMetrics{} }
func (e *fakeEngine) Subscribe(fn func(Event))      {}

var errSendFailed = &fakeErr{"send failed"}

type fakeErr struct{ s string }

func (e *fakeErr) Error() string { return e.s }
