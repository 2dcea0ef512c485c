package signaling

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

// fakeEngine is a minimal, stateful stand-in for core.MediaEngine: it
// allocates sequential ids and remembers enough bookkeeping (which
// transport belongs to which room/client, which producer a consumer is
// for) to let the handler tests exercise real control-plane logic without
// a pion WebRTC stack.
type fakeEngine struct {
	mu              sync.Mutex
	seq             atomic.Uint64
	transport       map[domain.TransportID]core.CreateTransportParams
	producer        map[domain.ProducerID]core.CreateProducerParams
	consumer        map[domain.ConsumerID]domain.ProducerID
	closedProducers []domain.ProducerID
	subscribers     []func(core.Event)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		transport: map[domain.TransportID]core.CreateTransportParams{},
		producer:  map[domain.ProducerID]core.CreateProducerParams{},
		consumer:  map[domain.ConsumerID]domain.ProducerID{},
	}
}

func (e *fakeEngine) nextID(prefix string) string {
	n := e.seq.Add(1)
	return prefix + string(rune('0'+n%10)) + "-" + string(rune('a'+n%26))
}

func (e *fakeEngine) CreateWebRTCTransport(ctx context.Context, p core.CreateTransportParams) (core.TransportCreated, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := domain.TransportID(e.nextID("t"))
	e.transport[id] = p
	return core.TransportCreated{TransportID: id, Direction: p.Direction}, nil
}

func (e *fakeEngine) ConnectTransport(ctx context.Context, p core.ConnectTransportParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.transport[p.TransportID]; !ok {
		return core.ErrTransportNotFound
	}
	return nil
}

func (e *fakeEngine) CloseTransport(ctx context.Context, id domain.TransportID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.transport, id)
	return nil
}

func (e *fakeEngine) CreateProducer(ctx context.Context, p core.CreateProducerParams) (core.ProducedResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.transport[p.TransportID]; !ok {
		return core.ProducedResult{}, core.ErrTransportNotFound
	}
	id := domain.ProducerID(e.nextID("p"))
	e.producer[id] = p
	return core.ProducedResult{ProducerID: id, Kind: p.Kind}, nil
}

func (e *fakeEngine) CreateConsumer(ctx context.Context, p core.CreateConsumerParams) (core.ConsumedResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prod, ok := e.producer[p.ProducerID]
	if !ok {
		return core.ConsumedResult{}, core.ErrProducerNotFound
	}
	id := domain.ConsumerID(e.nextID("c"))
	e.consumer[id] = p.ProducerID
	return core.ConsumedResult{ConsumerID: id, ProducerID: p.ProducerID, Kind: prod.Kind}, nil
}

func (e *fakeEngine) CloseProducer(ctx context.Context, id domain.ProducerID) error {
	e.mu.Lock()
	p, ok := e.producer[id]
	delete(e.producer, id)
	e.closedProducers = append(e.closedProducers, id)
	subs := append([]func(core.Event){}, e.subscribers...)
	e.mu.Unlock()

	if !ok {
		return nil
	}
	for _, fn := range subs {
		fn(core.Event{Kind: core.EventProducerClosed, RoomName: p.RoomName, ClientID: p.ClientID, ID: string(id)})
	}
	return nil
}

func (e *fakeEngine) CloseConsumer(ctx context.Context, id domain.ConsumerID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.consumer, id)
	return nil
}

func (e *fakeEngine) CloseClient(ctx context.Context, id domain.ClientID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for tid, p := range e.transport {
		if p.ClientID == id {
			delete(e.transport, tid)
		}
	}
	return nil
}

func (e *fakeEngine) RoomsOverview() core.RoomOverview { return core.RoomOverview{} }
func (e *fakeEngine) Metrics() core.EngineMetrics      { return core.EngineMetrics{} }

func (e *fakeEngine) Subscribe(fn func(core.Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// fakeChannel captures every payload sent to it for assertions.
type fakeChannel struct {
	mu   sync.Mutex
	sent []any
	open bool
}

func newFakeChannel() *fakeChannel { return &fakeChannel{open: true} }

func (c *fakeChannel) Send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}
func (c *fakeChannel) IsOpen() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.open }
func (c *fakeChannel) Close() error { c.mu.Lock(); defer c.mu.Unlock(); c.open = false; return nil }

func (c *fakeChannel) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) typesSent() []string {
	var out []string
	for _, m := range c.messages() {
		if mm, ok := m.(map[string]any); ok {
			if t, ok := mm["type"].(string); ok {
				out = append(out, t)
			}
		}
	}
	return out
}
