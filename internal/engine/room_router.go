package engine

import (
	"sync"
	"sync/atomic"

	"github.com/confplane/signaling-core/internal/domain"
)

// roomRouter is the per-room engine context: the worker it was bound to, and
// the active + ever-created counters spec.md §4.3 names.
type roomRouter struct {
	name   domain.RoomName
	worker *Worker

	mu         sync.RWMutex
	transports map[domain.TransportID]*transport
	producers  map[domain.ProducerID]*producer
	consumers  map[domain.ConsumerID]*consumer

	totalProducers atomic.Uint64
	totalConsumers atomic.Uint64
}

func newRoomRouter(name domain.RoomName, w *Worker) *roomRouter {
	return &roomRouter{
		name:       name,
		worker:     w,
		transports: make(map[domain.TransportID]*transport),
		producers:  make(map[domain.ProducerID]*producer),
		consumers:  make(map[domain.ConsumerID]*consumer),
	}
}

func (rr *roomRouter) addTransport(t *transport) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.transports[t.id] = t
}

func (rr *roomRouter) removeTransport(id domain.TransportID) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.transports, id)
}

func (rr *roomRouter) addProducer(p *producer) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.producers[p.id] = p
	rr.totalProducers.Add(1)
}

func (rr *roomRouter) removeProducer(id domain.ProducerID) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.producers, id)
}

func (rr *roomRouter) addConsumer(c *consumer) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.consumers[c.id] = c
	rr.totalConsumers.Add(1)
}

func (rr *roomRouter) removeConsumer(id domain.ConsumerID) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.consumers, id)
}

func (rr *roomRouter) counts() (transports, producers, consumers int) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.transports), len(rr.producers), len(rr.consumers)
}

func (rr *roomRouter) lookupTransport(id domain.TransportID) *transport {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.transports[id]
}

func (rr *roomRouter) lookupProducer(id domain.ProducerID) *producer {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.producers[id]
}

func (rr *roomRouter) lookupConsumer(id domain.ConsumerID) *consumer {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.consumers[id]
}

// producersOnTransport and consumersOnTransport back the transport-close
// cascade: a dying transport needs to find every resource built on top of
// it without the transport itself having to track them.
func (rr *roomRouter) producersOnTransport(id domain.TransportID) []domain.ProducerID {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	var ids []domain.ProducerID
	for pid, p := range rr.producers {
		if p.transport.id == id {
			ids = append(ids, pid)
		}
	}
	return ids
}

func (rr *roomRouter) consumersOnTransport(id domain.TransportID) []domain.ConsumerID {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	var ids []domain.ConsumerID
	for cid, c := range rr.consumers {
		if c.transport.id == id {
			ids = append(ids, cid)
		}
	}
	return ids
}

// consumersOfProducer backs the producer-close cascade: every consumer bound
// to a closing producer (Glossary: a consumer is "bound to exactly one
// producer") must be closed and its own event emitted alongside it.
func (rr *roomRouter) consumersOfProducer(id domain.ProducerID) []domain.ConsumerID {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	var ids []domain.ConsumerID
	for cid, c := range rr.consumers {
		if c.producerID == id {
			ids = append(ids, cid)
		}
	}
	return ids
}
