package signaling

import (
	"context"

	"github.com/confplane/signaling-core/internal/domain"
)

func init() {
	register("ice", handleICE)
	register("offer", handleLegacyRelay)
	register("answer", handleLegacyRelay)
	register("candidate", handleLegacyRelay)
}

// handleICE implements spec.md §4.4's ICE relay: forward to a single peer
// if `to` is set, to a room minus sender if `room` is set, or error if
// neither was given.
func handleICE(ctx context.Context, s *Session, env envelope) {
	payload := map[string]any{"type": "ice", "from": s.id, "candidate": env.raw["candidate"]}

	if to := env.str("to"); to != "" {
		if !s.deps.Clients.SendTo(domain.ClientID(to), payload) {
			s.reply(errMsg("peer not found: " + to))
		}
		return
	}
	if room := env.str("room"); room != "" {
		if s.deps.Bridge != nil {
			s.deps.Bridge.BroadcastToRoom(domain.RoomName(room), payload, s.id)
		}
		return
	}
	s.reply(errMsg("ice requires either 'to' or 'room'"))
}

// handleLegacyRelay implements spec.md §4.4's legacy offer/answer/candidate
// relay: the original message is annotated with `from` and either forwarded
// to `to` or broadcast to the room minus the sender.
func handleLegacyRelay(ctx context.Context, s *Session, env envelope) {
	payload := env.withFrom(string(s.id))

	if to := env.str("to"); to != "" {
		if !s.deps.Clients.SendTo(domain.ClientID(to), payload) {
			s.reply(errMsg("peer not found: " + to))
		}
		return
	}
	if room := env.str("room"); room != "" {
		if s.deps.Bridge != nil {
			s.deps.Bridge.BroadcastToRoom(domain.RoomName(room), payload, s.id)
		}
		return
	}
	s.reply(errMsg(env.Type + " requires either 'to' or 'room'"))
}
