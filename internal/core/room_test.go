package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confplane/signaling-core/internal/domain"
)

func TestRoom_AddMember_FirstPublisherBecomesOwner(t *testing.T) {
	// Given a fresh room
	room := newRoom("R", domain.RoomOptions{}, time.Now())

	// When an observer joins before any publisher
	room.AddMember("obs", domain.RoleObserver)
	// Then there is still no owner
	require.Equal(t, domain.ClientID(""), room.OwnerID())

	// When a publisher joins
	room.AddMember("pub", domain.RolePublisher)
	// Then the publisher becomes owner
	require.Equal(t, domain.ClientID("pub"), room.OwnerID())
}

func TestRoom_RemoveMember_ReassignsOwnerInInsertionOrder(t *testing.T) {
	// Given a room with owner A, then an observer and a publisher joined after
	room := newRoom("R", domain.RoomOptions{}, time.Now())
	room.AddMember("a", domain.RolePublisher)
	room.AddMember("b", domain.RoleObserver)
	room.AddMember("c", domain.RolePublisher)
	require.Equal(t, domain.ClientID("a"), room.OwnerID())

	// When the owner leaves
	room.RemoveMember("a")

	// Then ownership passes to the next publisher/moderator in insertion
	// order, skipping the observer
	require.Equal(t, domain.ClientID("c"), room.OwnerID())
}

func TestRoom_RemoveMember_NoEligibleMemberLeavesOwnerEmpty(t *testing.T) {
	room := newRoom("R", domain.RoomOptions{}, time.Now())
	room.AddMember("a", domain.RolePublisher)
	room.AddMember("b", domain.RoleObserver)

	room.RemoveMember("a")

	require.Equal(t, domain.ClientID(""), room.OwnerID())
	require.False(t, room.HasMember("a"))
	require.True(t, room.HasMember("b"))
}

func TestRoom_RemoveMember_Idempotent(t *testing.T) {
	room := newRoom("R", domain.RoomOptions{}, time.Now())
	room.AddMember("a", domain.RolePublisher)

	room.RemoveMember("a")
	require.NotPanics(t, func() { room.RemoveMember("a") })
	require.Equal(t, 0, room.MemberCount())
}

func TestRoom_Producers_TrackedPerClient(t *testing.T) {
	room := newRoom("R", domain.RoomOptions{}, time.Now())
	room.AddMember("a", domain.RolePublisher)

	room.AddProducer("p1", ProducerRecord{ClientID: "a", Kind: domain.KindVideo, CreatedAt: time.Now()})
	room.AddProducer("p2", ProducerRecord{ClientID: "a", Kind: domain.KindAudio, CreatedAt: time.Now()})

	require.Equal(t, 1, room.CountVideoProducers())
	require.ElementsMatch(t, []domain.ProducerID{"p1", "p2"}, room.ProducersOwnedBy("a"))

	room.RemoveProducer("p1")
	require.Equal(t, 0, room.CountVideoProducers())
	_, ok := room.Producer("p1")
	require.False(t, ok)
}
