package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confplane/signaling-core/internal/domain"
)

func TestClientRegistry_SendTo_ClosedChannelReturnsFalse(t *testing.T) {
	ch := newFakeChannel()
	cr := NewClientRegistry(NewRoomRegistry(domain.RoomOptions{}, nil), nil, nil)
	cr.Add("a", ch, nil)

	ch.Close()

	require.False(t, cr.SendTo("a", map[string]any{"type": "x"}))
}

func TestClientRegistry_SendTo_UnknownClientReturnsFalse(t *testing.T) {
	cr := NewClientRegistry(NewRoomRegistry(domain.RoomOptions{}, nil), nil, nil)
	require.False(t, cr.SendTo("ghost", "hi"))
}

func TestClientRegistry_CloseResources_ClosesEveryOwnedResource(t *testing.T) {
	// Given a client with one transport, producer and consumer
	engine := &fakeEngine{}
	cr := NewClientRegistry(NewRoomRegistry(domain.RoomOptions{}, engine), engine, nil)
	sess := cr.Add("a", newFakeChannel(), nil)
	sess.AddTransport("t1", TransportInfo{Room: "R", Direction: domain.DirectionSend})
	sess.AddProducer("p1")
	sess.AddConsumer("c1")

	// When resources are closed
	cr.CloseResources(context.Background(), "a")

	// Then the engine saw a close call for each, plus closeClient
	require.Equal(t, []domain.TransportID{"t1"}, engine.closedTransport)
	require.Equal(t, []domain.ProducerID{"p1"}, engine.closedProducer)
	require.Equal(t, []domain.ConsumerID{"c1"}, engine.closedConsumer)
	require.Equal(t, []domain.ClientID{"a"}, engine.closedClient)
}

func TestClientRegistry_RemoveFromAllRooms_BroadcastsMemberLeftAndDeletesEmptyRoom(t *testing.T) {
	engine := &fakeEngine{}
	rooms := NewRoomRegistry(domain.RoomOptions{}, engine)
	var broadcasts []string
	cr := NewClientRegistry(rooms, engine, func(room domain.RoomName, payload any, exclude domain.ClientID) {
		broadcasts = append(broadcasts, string(room))
	})

	room := rooms.Ensure("R")
	room.AddMember("a", domain.RolePublisher)
	sess := cr.Add("a", newFakeChannel(), nil)
	sess.AddRoom("R")
	room.AddProducer("p1", ProducerRecord{ClientID: "a", Kind: domain.KindVideo})

	cr.RemoveFromAllRooms(context.Background(), "a")

	require.Equal(t, []string{"R"}, broadcasts)
	require.Equal(t, []domain.ProducerID{"p1"}, engine.closedProducer)
	require.False(t, room.HasMember("a"))

	// The room had no other members, so RemoveFromAllRooms already deleted it.
	_, ok := rooms.Get("R")
	require.False(t, ok)
}

func TestRoomRegistry_Ensure_IsIdempotent(t *testing.T) {
	rooms := NewRoomRegistry(domain.RoomOptions{AllowObservers: true}, nil)
	r1 := rooms.Ensure("R")
	r2 := rooms.Ensure("R")
	require.Same(t, r1, r2)
}

func TestRoomRegistry_DeleteIfEmpty_OnlyDeletesWhenEmpty(t *testing.T) {
	rooms := NewRoomRegistry(domain.RoomOptions{}, nil)
	room := rooms.Ensure("R")
	room.AddMember("a", domain.RolePublisher)

	require.False(t, rooms.DeleteIfEmpty("R"))

	room.RemoveMember("a")
	require.True(t, rooms.DeleteIfEmpty("R"))

	_, ok := rooms.Get("R")
	require.False(t, ok)
}
