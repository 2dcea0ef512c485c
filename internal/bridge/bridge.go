// Package bridge implements the Fan-out & Event Bridge (spec.md §4.5): it
// subscribes to the Media Engine Adapter's lifecycle events at startup,
// mutates the registries to match, and broadcasts the resulting change to
// the affected room. It is also the home of the broadcastToRoom primitive
// that internal/signaling's handlers call directly.
package bridge

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

// Bridge wires one MediaEngine's events into the two registries. Construct
// once at startup and call Start to subscribe.
type Bridge struct {
	engine  core.MediaEngine
	clients *core.ClientRegistry
	rooms   *core.RoomRegistry
}

func New(engine core.MediaEngine, clients *core.ClientRegistry, rooms *core.RoomRegistry) *Bridge {
	return &Bridge{engine: engine, clients: clients, rooms: rooms}
}

// Start registers the Bridge's handler with the engine. Call exactly once.
func (b *Bridge) Start() {
	b.engine.Subscribe(b.handle)
}

func (b *Bridge) handle(ev core.Event) {
	switch ev.Kind {
	case core.EventTransportClosed:
		b.onTransportClosed(ev)
	case core.EventProducerClosed:
		b.onProducerClosed(ev)
	case core.EventConsumerClosed:
		b.onConsumerClosed(ev)
	default:
		log.Warn().Str("module", "bridge").Str("kind", ev.Kind.String()).Msg("unknown event kind")
	}
}

func (b *Bridge) onTransportClosed(ev core.Event) {
	sess, ok := b.clients.Get(ev.ClientID)
	if !ok {
		return
	}
	sess.RemoveTransport(domain.TransportID(ev.ID))
}

// onProducerClosed removes the producer from the room and the owning
// client, then broadcasts sfu.producerClosed to every current member —
// engine-initiated closes race with explicit sfu.closeProducer calls, so
// both paths must tolerate a missing producer record.
func (b *Bridge) onProducerClosed(ev core.Event) {
	producerID := domain.ProducerID(ev.ID)

	if sess, ok := b.clients.Get(ev.ClientID); ok {
		sess.RemoveProducer(producerID)
	}

	room, ok := b.rooms.Get(ev.RoomName)
	if !ok || !room.RemoveProducer(producerID) {
		// Already gone (or the room itself is): an earlier event or a
		// control-plane removal got there first, so there is nothing left
		// to announce.
		return
	}

	b.BroadcastToRoom(ev.RoomName, map[string]any{
		"type":       "sfu.producerClosed",
		"room":       ev.RoomName,
		"producerId": producerID,
		"clientId":   ev.ClientID,
	}, "")
}

func (b *Bridge) onConsumerClosed(ev core.Event) {
	sess, ok := b.clients.Get(ev.ClientID)
	if !ok {
		return
	}
	sess.RemoveConsumer(domain.ConsumerID(ev.ID))
}

// BroadcastToRoom iterates room's members, skipping exclude if non-empty,
// and calls SendTo on each. Failures are silent: a channel-close will drive
// the disconnect path separately (spec.md §4.5).
func (b *Bridge) BroadcastToRoom(name domain.RoomName, payload any, exclude domain.ClientID) {
	room, ok := b.rooms.Get(name)
	if !ok {
		return
	}
	for _, id := range room.Members() {
		if exclude != "" && id == exclude {
			continue
		}
		b.clients.SendTo(id, payload)
	}
}

// BroadcastFunc adapts BroadcastToRoom to core.BroadcastFunc so it can be
// wired into NewClientRegistry without core importing this package.
func (b *Bridge) BroadcastFunc() core.BroadcastFunc {
	return func(room domain.RoomName, payload any, exclude domain.ClientID) {
		b.BroadcastToRoom(room, payload, exclude)
	}
}

// BroadcastAll fans payload out to every currently registered client,
// regardless of room membership — used for the process-wide `leave{id}`
// notification on disconnect (spec.md §4.4).
func (b *Bridge) BroadcastAll(ctx context.Context, payload any, exclude domain.ClientID) {
	for _, id := range b.clients.AllIDs() {
		if id == exclude {
			continue
		}
		b.clients.SendTo(id, payload)
	}
}
