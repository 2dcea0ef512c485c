package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/domain"
)

// RoomInfo is the summary entry returned by Overview (backs `rooms` and
// admin.rooms).
type RoomInfo struct {
	Name  domain.RoomName `json:"name"`
	Count int             `json:"count"`
}

// ProducerPayload is one entry of the producers list sent to clients
// (sfu.listProducers, the observer-join snapshot).
type ProducerPayload struct {
	ProducerID domain.ProducerID   `json:"producerId"`
	Kind       domain.ProducerKind `json:"kind"`
	ClientID   domain.ClientID     `json:"clientId"`
}

// RoomDetail is the reply payload for admin.roomInfo.
type RoomDetail struct {
	Name        domain.RoomName           `json:"name"`
	CreatedAt   time.Time                 `json:"createdAt"`
	Members     []domain.ClientID         `json:"members"`
	Observers   int                       `json:"observers"`
	Moderators  int                       `json:"moderators"`
	OwnerID     domain.ClientID           `json:"ownerId"`
	Options     domain.RoomOptions        `json:"options"`
	Producers   []ProducerPayload         `json:"producers"`
}

// RoomRegistry is the process-wide mapping from room name to room state
// (spec.md §4.2). Rooms are created lazily and deleted when empty.
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomName]*Room
	defaults domain.RoomOptions
	engine   MediaEngine
}

func NewRoomRegistry(defaults domain.RoomOptions, engine MediaEngine) *RoomRegistry {
	return &RoomRegistry{
		rooms:    make(map[domain.RoomName]*Room),
		defaults: defaults,
		engine:   engine,
	}
}

// Ensure returns the existing room named name, or creates and stores a fresh
// one with config-sourced defaults. Idempotent.
func (rr *RoomRegistry) Ensure(name domain.RoomName) *Room {
	rr.mu.RLock()
	room, ok := rr.rooms[name]
	rr.mu.RUnlock()
	if ok {
		return room
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()
	if room, ok = rr.rooms[name]; ok {
		return room
	}
	room = newRoom(name, rr.defaults, time.Now())
	rr.rooms[name] = room
	return room
}

func (rr *RoomRegistry) Get(name domain.RoomName) (*Room, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	room, ok := rr.rooms[name]
	return room, ok
}

// ProducersPayload snapshots room's producer table as a wire-ready slice.
func (rr *RoomRegistry) ProducersPayload(room *Room) []ProducerPayload {
	producers := room.Producers()
	out := make([]ProducerPayload, 0, len(producers))
	for id, p := range producers {
		out = append(out, ProducerPayload{ProducerID: id, Kind: p.Kind, ClientID: p.ClientID})
	}
	return out
}

// RemoveMember removes id from room's membership, reassigning ownership as
// needed (delegated to Room.RemoveMember).
func (rr *RoomRegistry) RemoveMember(room *Room, id domain.ClientID) {
	room.RemoveMember(id)
}

// CloseClientProducers closes every engine-side producer owned by id in room
// and removes the control-plane entries — even if the engine call fails, so
// control-plane state never outlives a failed engine resource. Returns the
// ids it closed. It does not broadcast: the sfu.producerClosed fan-out comes
// from the Event Bridge handling the engine's producer-closed event.
func (rr *RoomRegistry) CloseClientProducers(ctx context.Context, room *Room, id domain.ClientID) []domain.ProducerID {
	owned := room.ProducersOwnedBy(id)
	for _, pid := range owned {
		if rr.engine != nil {
			if err := rr.engine.CloseProducer(ctx, pid); err != nil {
				log.Warn().Str("module", "core.rooms").Str("producerId", string(pid)).Err(err).Msg("close producer failed during cleanup")
			}
		}
		room.RemoveProducer(pid)
	}
	return owned
}

// DeleteIfEmpty removes the room named name if it has no members, returning
// true if it was deleted.
func (rr *RoomRegistry) DeleteIfEmpty(name domain.RoomName) bool {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	room, ok := rr.rooms[name]
	if !ok {
		return false
	}
	if room.MemberCount() > 0 {
		return false
	}
	delete(rr.rooms, name)
	return true
}

// Overview lists every room with its member count.
func (rr *RoomRegistry) Overview() []RoomInfo {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	out := make([]RoomInfo, 0, len(rr.rooms))
	for name, room := range rr.rooms {
		out = append(out, RoomInfo{Name: name, Count: room.MemberCount()})
	}
	return out
}

// Info returns the admin-facing detail view of a single room.
func (rr *RoomRegistry) Info(name domain.RoomName) (RoomDetail, bool) {
	room, ok := rr.Get(name)
	if !ok {
		return RoomDetail{}, false
	}
	return RoomDetail{
		Name:       room.Name,
		CreatedAt:  room.CreatedAt,
		Members:    room.Members(),
		Observers:  room.ObserverCount(),
		Moderators: room.ModeratorCount(),
		OwnerID:    room.OwnerID(),
		Options:    room.Options,
		Producers:  rr.ProducersPayload(room),
	}, true
}
