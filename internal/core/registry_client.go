package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/domain"
)

// BroadcastFunc fans a payload out to every member of room except exclude
// (when exclude is non-empty). Wired by the Fan-out & Event Bridge at
// construction time so core never imports the signaling layer.
type BroadcastFunc func(room domain.RoomName, payload any, exclude domain.ClientID)

// ClientRegistry is the process-wide mapping from connection identifier to
// session state (spec.md §4.1).
type ClientRegistry struct {
	mu        sync.RWMutex
	clients   map[domain.ClientID]*ClientSession
	rooms     *RoomRegistry
	engine    MediaEngine
	broadcast BroadcastFunc
}

func NewClientRegistry(rooms *RoomRegistry, engine MediaEngine, broadcast BroadcastFunc) *ClientRegistry {
	return &ClientRegistry{
		clients:   make(map[domain.ClientID]*ClientSession),
		rooms:     rooms,
		engine:    engine,
		broadcast: broadcast,
	}
}

func (cr *ClientRegistry) Add(id domain.ClientID, ch Channel, user *domain.User) *ClientSession {
	sess := NewClientSession(id, ch, user, time.Now())
	cr.mu.Lock()
	cr.clients[id] = sess
	cr.mu.Unlock()
	return sess
}

func (cr *ClientRegistry) Get(id domain.ClientID) (*ClientSession, bool) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	sess, ok := cr.clients[id]
	return sess, ok
}

func (cr *ClientRegistry) Remove(id domain.ClientID) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	delete(cr.clients, id)
}

// AllIDs returns a snapshot of every currently registered client id, used
// for the process-wide leave{id} notification on disconnect.
func (cr *ClientRegistry) AllIDs() []domain.ClientID {
	cr.mu.RLock()
	defer cr.mu.RUnlock()
	out := make([]domain.ClientID, 0, len(cr.clients))
	for id := range cr.clients {
		out = append(out, id)
	}
	return out
}

// SendTo delivers payload to id's channel. Returns false if the client is
// unknown or its channel is not open; send errors are logged and swallowed
// per spec.md §9 (a send failure is advisory, not a trigger for cleanup).
func (cr *ClientRegistry) SendTo(id domain.ClientID, payload any) bool {
	sess, ok := cr.Get(id)
	if !ok || sess.Channel == nil || !sess.Channel.IsOpen() {
		return false
	}
	if err := sess.Channel.Send(payload); err != nil {
		log.Warn().Str("module", "core.clients").Str("clientId", string(id)).Err(err).Msg("send failed")
		return false
	}
	return true
}

// CloseResources closes every engine resource id owns. Best-effort: failures
// are logged and skipped so bookkeeping never leaks.
func (cr *ClientRegistry) CloseResources(ctx context.Context, id domain.ClientID) {
	sess, ok := cr.Get(id)
	if !ok || cr.engine == nil {
		return
	}

	for _, tid := range sess.Transports() {
		if err := cr.engine.CloseTransport(ctx, tid); err != nil {
			log.Warn().Str("module", "core.clients").Str("transportId", string(tid)).Err(err).Msg("close transport failed")
		}
	}
	for _, pid := range sess.Producers() {
		if err := cr.engine.CloseProducer(ctx, pid); err != nil {
			log.Warn().Str("module", "core.clients").Str("producerId", string(pid)).Err(err).Msg("close producer failed")
		}
	}
	for _, cid := range sess.Consumers() {
		if err := cr.engine.CloseConsumer(ctx, cid); err != nil {
			log.Warn().Str("module", "core.clients").Str("consumerId", string(cid)).Err(err).Msg("close consumer failed")
		}
	}
	if err := cr.engine.CloseClient(ctx, id); err != nil {
		log.Warn().Str("module", "core.clients").Str("clientId", string(id)).Err(err).Msg("close client failed")
	}
}

// RemoveFromAllRooms walks every room id belongs to, closes its producers in
// that room, removes its membership, broadcasts member-left, and deletes the
// room if it is now empty.
func (cr *ClientRegistry) RemoveFromAllRooms(ctx context.Context, id domain.ClientID) {
	sess, ok := cr.Get(id)
	if !ok {
		return
	}

	for _, name := range sess.Rooms() {
		room, ok := cr.rooms.Get(name)
		if !ok {
			continue
		}
		// closeClientProducers drives the engine's close for each owned
		// producer; the resulting producer-closed event is what the Event
		// Bridge turns into the sfu.producerClosed broadcast. Its own
		// idempotent room.RemoveProducer call keeps the control-plane entry
		// gone even when the engine call fails.
		cr.rooms.CloseClientProducers(ctx, room, id)
		cr.rooms.RemoveMember(room, id)
		sess.RemoveRoom(name)

		if cr.broadcast != nil {
			cr.broadcast(name, map[string]any{
				"type": "member-left",
				"room": name,
				"id":   id,
			}, id)
		}
		cr.rooms.DeleteIfEmpty(name)
	}
}
