package signaling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/confplane/signaling-core/internal/bridge"
	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

// testHarness wires a full Deps the way cmd/server/main.go does, against a
// fakeEngine instead of the real pion-backed adapter.
type testHarness struct {
	deps    Deps
	rooms   *core.RoomRegistry
	clients *core.ClientRegistry
	engine  *fakeEngine
}

func newHarness(opts domain.RoomOptions) *testHarness {
	eng := newFakeEngine()
	rooms := core.NewRoomRegistry(opts, eng)

	var b *bridge.Bridge
	clients := core.NewClientRegistry(rooms, eng, func(room domain.RoomName, payload any, exclude domain.ClientID) {
		b.BroadcastToRoom(room, payload, exclude)
	})
	b = bridge.New(eng, clients, rooms)
	b.Start()

	return &testHarness{
		deps: Deps{
			Clients: clients,
			Rooms:   rooms,
			Engine:  eng,
			Bridge:  b,
		},
		rooms:   rooms,
		clients: clients,
		engine:  eng,
	}
}

// connect authenticates a new, unauthenticated session (auth disabled in
// these tests) and returns it along with the fakeChannel backing it.
func (h *testHarness) connect(user *domain.User) (*Session, *fakeChannel) {
	ch := newFakeChannel()
	s := New(h.deps, ch)
	s.sess = h.deps.Clients.Add(s.id, ch, user)
	return s, ch
}

func send(s *Session, msg map[string]any) {
	data, _ := json.Marshal(msg)
	s.HandleMessage(data)
}

func TestScenario_BasicJoinFanOut(t *testing.T) {
	h := newHarness(domain.RoomOptions{})
	a, chA := h.connect(nil)
	b, chB := h.connect(nil)
	c, chC := h.connect(nil)

	send(a, map[string]any{"type": "join", "room": "R"})
	send(b, map[string]any{"type": "join", "room": "R"})
	send(c, map[string]any{"type": "join", "room": "R"})

	require.Contains(t, chA.typesSent(), "joined")
	require.Contains(t, chB.typesSent(), "joined")
	require.Contains(t, chC.typesSent(), "joined")

	// A joined first and so observes both later joins; C joined last and
	// observes none.
	require.Equal(t, 2, countType(chA, "member-joined"))
	require.Equal(t, 1, countType(chB, "member-joined"))
	require.Equal(t, 0, countType(chC, "member-joined"))

	room, ok := h.rooms.Get("R")
	require.True(t, ok)
	require.ElementsMatch(t, []domain.ClientID{a.id, b.id, c.id}, room.Members())
	require.Equal(t, a.id, room.OwnerID())
}

func TestScenario_VideoProducerLimit(t *testing.T) {
	h := newHarness(domain.RoomOptions{MaxVideoProducers: 2})
	a, chA := h.connect(nil)
	b, chB := h.connect(nil)
	c, chC := h.connect(nil)

	for _, s := range []*Session{a, b, c} {
		send(s, map[string]any{"type": "join", "room": "R"})
		send(s, map[string]any{"type": "sfu.createTransport", "room": "R", "direction": "send"})
	}

	produce := func(s *Session) {
		tid := lastTransportID(s)
		send(s, map[string]any{
			"type":          "sfu.produce",
			"transportId":   tid,
			"room":          "R",
			"kind":          "video",
			"rtpParameters": map[string]any{"Encodings": []map[string]any{{"SSRC": 1111}}},
		})
	}

	produce(a)
	produce(b)
	produce(c)

	require.Contains(t, chA.typesSent(), "sfu.produced")
	require.Contains(t, chB.typesSent(), "sfu.produced")

	found := false
	for _, m := range chC.messages() {
		if mm, ok := m.(map[string]any); ok && mm["type"] == "error" {
			if msg, _ := mm["message"].(string); msg == "room already has 2 video producers" {
				found = true
			}
		}
	}
	require.True(t, found, "expected C to be rejected with the video-limit error")

	room, _ := h.rooms.Get("R")
	videoCount := 0
	for _, p := range room.Producers() {
		if p.Kind == domain.KindVideo {
			videoCount++
		}
	}
	require.Equal(t, 2, videoCount)
}

func TestScenario_ObserverCannotProduce(t *testing.T) {
	h := newHarness(domain.RoomOptions{AllowObservers: true})
	o, chO := h.connect(nil)

	send(o, map[string]any{"type": "join", "room": "R", "role": "observer"})
	send(o, map[string]any{"type": "sfu.createTransport", "room": "R", "direction": "send"})

	tid := lastTransportID(o)
	send(o, map[string]any{
		"type":          "sfu.produce",
		"transportId":   tid,
		"room":          "R",
		"kind":          "audio",
		"rtpParameters": map[string]any{},
	})

	require.NotContains(t, chO.typesSent(), "sfu.produced")
	lastErr := lastErrorMessage(chO)
	require.Equal(t, "observers cannot produce", lastErr)
}

func TestScenario_DisconnectCleanupWithFanOut(t *testing.T) {
	h := newHarness(domain.RoomOptions{})
	a, _ := h.connect(nil)
	b, chB := h.connect(nil)

	send(a, map[string]any{"type": "join", "room": "R"})
	send(b, map[string]any{"type": "join", "room": "R"})
	send(a, map[string]any{"type": "sfu.createTransport", "room": "R", "direction": "send"})
	tid := lastTransportID(a)
	send(a, map[string]any{
		"type":          "sfu.produce",
		"transportId":   tid,
		"room":          "R",
		"kind":          "video",
		"rtpParameters": map[string]any{"Encodings": []map[string]any{{"SSRC": 2222}}},
	})

	a.Disconnect()

	types := chB.typesSent()
	require.Contains(t, types, "sfu.producerClosed")
	require.Contains(t, types, "member-left")
	require.Contains(t, types, "leave")

	room, ok := h.rooms.Get("R")
	require.True(t, ok)
	require.False(t, room.HasMember(a.id))
	require.Equal(t, b.id, room.OwnerID())
}

func TestScenario_ExplicitCloseProducerRestoresPreProduceState(t *testing.T) {
	h := newHarness(domain.RoomOptions{})
	a, chA := h.connect(nil)
	b, _ := h.connect(nil)

	send(a, map[string]any{"type": "join", "room": "R"})
	send(b, map[string]any{"type": "join", "room": "R"})
	send(a, map[string]any{"type": "sfu.createTransport", "room": "R", "direction": "send"})
	tid := lastTransportID(a)
	send(a, map[string]any{
		"type":          "sfu.produce",
		"transportId":   tid,
		"room":          "R",
		"kind":          "video",
		"rtpParameters": map[string]any{"Encodings": []map[string]any{{"SSRC": 3333}}},
	})

	room, _ := h.rooms.Get("R")
	require.Len(t, room.Producers(), 1)
	pid := lastProducerID(chA)

	send(a, map[string]any{"type": "sfu.closeProducer", "producerId": pid})

	require.Empty(t, room.Producers())
	require.Equal(t, 2, countType(chA, "sfu.producerClosed"))
}

func TestScenario_ModeratorGate(t *testing.T) {
	h := newHarness(domain.RoomOptions{})

	unauth, chUnauth := h.connect(nil)
	send(unauth, map[string]any{"type": "join", "room": "R", "role": "moderator"})
	require.Equal(t, "only admin users can join as moderator", lastErrorMessage(chUnauth))

	admin, chAdmin := h.connect(&domain.User{ID: "u1", Role: domain.UserRoleAdmin})
	send(admin, map[string]any{"type": "join", "room": "R", "role": "moderator"})
	require.Contains(t, chAdmin.typesSent(), "joined")

	room, _ := h.rooms.Get("R")
	role, ok := room.RoleOf(admin.id)
	require.True(t, ok)
	require.Equal(t, domain.RoleModerator, role)
}

// lastTransportID pulls the transportId out of the most recent
// sfu.transportCreated reply sent to s — a minimal stand-in for the
// request-id correlation spec.md describes as the client's job.
func lastTransportID(s *Session) domain.TransportID {
	ch, ok := s.channel.(*fakeChannel)
	if !ok {
		return ""
	}
	for i := len(ch.messages()) - 1; i >= 0; i-- {
		if mm, ok := ch.messages()[i].(map[string]any); ok && mm["type"] == "sfu.transportCreated" {
			return mm["transportId"].(domain.TransportID)
		}
	}
	return ""
}

// lastProducerID pulls the producerId out of the most recent sfu.produced
// reply sent to ch.
func lastProducerID(ch *fakeChannel) domain.ProducerID {
	msgs := ch.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if mm, ok := msgs[i].(map[string]any); ok && mm["type"] == "sfu.produced" {
			return mm["producerId"].(domain.ProducerID)
		}
	}
	return ""
}

func countType(ch *fakeChannel, msgType string) int {
	n := 0
	for _, m := range ch.messages() {
		if mm, ok := m.(map[string]any); ok && mm["type"] == msgType {
			n++
		}
	}
	return n
}

func lastErrorMessage(ch *fakeChannel) string {
	msgs := ch.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if mm, ok := msgs[i].(map[string]any); ok && mm["type"] == "error" {
			return mm["message"].(string)
		}
	}
	return ""
}
