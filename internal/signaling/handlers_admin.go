package signaling

import (
	"context"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

func init() {
	register("admin.rooms", handleAdminRooms)
	register("admin.roomInfo", handleAdminRoomInfo)
	register("admin.metrics", handleAdminMetrics)
}

func handleAdminRooms(ctx context.Context, s *Session, env envelope) {
	if !s.requireAdmin() {
		return
	}
	overview := s.deps.Rooms.Overview()
	out := make([]map[string]any, 0, len(overview))
	for _, r := range overview {
		out = append(out, map[string]any{"name": r.Name, "count": r.Count})
	}
	s.reply(map[string]any{"type": "admin.rooms", "rooms": out})
}

func handleAdminRoomInfo(ctx context.Context, s *Session, env envelope) {
	if !s.requireAdmin() {
		return
	}
	roomName := domain.RoomName(env.str("room"))
	if roomName == "" {
		s.reply(errMsg("missing field: room"))
		return
	}
	detail, ok := s.deps.Rooms.Info(roomName)
	if !ok {
		s.reply(errMsg(core.ErrRoomNotFound.Error()))
		return
	}
	s.reply(map[string]any{"type": "admin.roomInfo", "room": detail})
}

func handleAdminMetrics(ctx context.Context, s *Session, env envelope) {
	if !s.requireAdmin() {
		return
	}
	if !s.requireSfuEnabled() {
		return
	}
	s.reply(map[string]any{"type": "admin.metrics", "metrics": s.deps.Engine.Metrics()})
}
