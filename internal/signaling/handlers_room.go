package signaling

import (
	"context"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

func init() {
	register("join", handleJoin)
	register("leaveRoom", handleLeaveRoom)
	register("leave", handleLeave)
	register("list", handleList)
	register("rooms", handleRooms)
}

// handleJoin implements spec.md §4.4's join semantics: role defaults to
// publisher, moderator requires an admin principal, observer requires the
// room to allow observers and have capacity.
func handleJoin(ctx context.Context, s *Session, env envelope) {
	roomName := domain.RoomName(env.str("room"))
	if roomName == "" {
		s.reply(errMsg("missing field: room"))
		return
	}

	role := domain.RolePublisher
	if raw := env.str("role"); raw != "" {
		role = domain.Role(raw)
		if !role.IsValid() {
			s.reply(errMsg("invalid role: " + raw))
			return
		}
	}

	if role == domain.RoleModerator && !s.sess.User.IsAdmin() {
		s.reply(errMsg(core.ErrModeratorNeedsAdmin.Error()))
		return
	}

	room := s.deps.Rooms.Ensure(roomName)

	if role == domain.RoleObserver {
		if !room.Options.AllowObservers {
			s.reply(errMsg(core.ErrObserversNotAllowed.Error()))
			return
		}
		if room.Options.MaxObservers > 0 && room.ObserverCount() >= room.Options.MaxObservers {
			s.reply(errMsg(core.ErrObserverRoomFull.Error()))
			return
		}
	}

	room.AddMember(s.id, role)
	s.sess.SetRole(role)
	s.sess.AddRoom(roomName)

	s.reply(map[string]any{"type": "joined", "room": roomName, "id": s.id, "role": role})

	if role == domain.RoleObserver {
		s.reply(map[string]any{
			"type":      "sfu.producers",
			"room":      roomName,
			"producers": s.deps.Rooms.ProducersPayload(room),
		})
	}

	if s.deps.Bridge != nil {
		s.deps.Bridge.BroadcastToRoom(roomName, map[string]any{
			"type": "member-joined",
			"room": roomName,
			"id":   s.id,
			"role": role,
		}, s.id)
	}
}

// handleLeaveRoom implements spec.md §4.4's explicit leave: close the
// client's producers in the room, remove membership, reply, broadcast, and
// delete the room if now empty.
func handleLeaveRoom(ctx context.Context, s *Session, env envelope) {
	roomName := domain.RoomName(env.str("room"))
	if roomName == "" {
		s.reply(errMsg("missing field: room"))
		return
	}

	room, ok := s.deps.Rooms.Get(roomName)
	if !ok {
		s.reply(errMsg(core.ErrRoomNotFound.Error()))
		return
	}

	// closeClientProducers drives the engine's close for each owned
	// producer; the Event Bridge turns the resulting producer-closed event
	// into the sfu.producerClosed broadcast before this handler replies.
	s.deps.Rooms.CloseClientProducers(ctx, room, s.id)
	s.deps.Rooms.RemoveMember(room, s.id)
	s.sess.RemoveRoom(roomName)

	s.reply(map[string]any{"type": "left", "room": roomName, "id": s.id})

	if s.deps.Bridge != nil {
		s.deps.Bridge.BroadcastToRoom(roomName, map[string]any{
			"type": "member-left",
			"room": roomName,
			"id":   s.id,
		}, s.id)
	}

	s.deps.Rooms.DeleteIfEmpty(roomName)
}

// handleLeave is the no-reply, no-broadcast variant spec.md §6 lists; it
// exists for clients that want to signal intent without the room-scoped
// bookkeeping of leaveRoom. It is a no-op: no reply, no state change — the
// real cleanup happens on channel-close.
func handleLeave(ctx context.Context, s *Session, env envelope) {}

func handleList(ctx context.Context, s *Session, env envelope) {
	ids := s.deps.Clients.AllIDs()
	s.reply(map[string]any{"type": "list", "clients": ids})
}

func handleRooms(ctx context.Context, s *Session, env envelope) {
	overview := s.deps.Rooms.Overview()
	out := make([]map[string]any, 0, len(overview))
	for _, r := range overview {
		out = append(out, map[string]any{"name": r.Name, "count": r.Count})
	}
	s.reply(map[string]any{"type": "rooms", "rooms": out})
}
