// Package signaling implements the Signaling Session component (spec.md
// §4.4): the per-connection message loop, precondition validation, and
// dispatch to handlers for every message type in spec.md §6.
package signaling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/auth"
	"github.com/confplane/signaling-core/internal/bridge"
	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
	"github.com/confplane/signaling-core/internal/recorder"
)

// Deps bundles every collaborator a Session needs. Constructed once at
// startup and shared by every connection.
type Deps struct {
	Clients    *core.ClientRegistry
	Rooms      *core.RoomRegistry
	Engine     core.MediaEngine // nil means "sfu not enabled"
	Bridge     *bridge.Bridge
	Auth       *auth.Validator // nil means auth is disabled
	Recorder   *recorder.Client
	EnableAuth bool
}

// Session is one connection's state machine: unauthenticated ->
// authenticated -> in-room* -> closed (spec.md §4.4). It owns the decode/
// dispatch loop; every handler below runs on the same goroutine that calls
// HandleMessage, satisfying the message-serialized-per-connection ordering
// guarantee spec.md §5 requires.
type Session struct {
	deps Deps

	id      domain.ClientID
	channel core.Channel
	sess    *core.ClientSession // nil until authenticated/registered
	closed  bool
}

// New creates a Session bound to channel. The caller must call Authenticate
// (or skip it when auth is disabled) before any other message is handled.
func New(deps Deps, channel core.Channel) *Session {
	return &Session{
		deps:    deps,
		id:      domain.ClientID(uuid.NewString()),
		channel: channel,
	}
}

// Authenticate runs the unauthenticated -> authenticated transition. token
// is the `token` query parameter from the channel-open URL, possibly empty.
// On success it registers the session in the Client Registry and sends the
// `id{id}` welcome message. On failure (auth required but invalid) it sends
// an error and returns false; the caller must close the channel.
func (s *Session) Authenticate(token string) bool {
	var user *domain.User

	if s.deps.EnableAuth {
		if s.deps.Auth == nil {
			log.Error().Str("module", "signaling").Msg("ENABLE_AUTH is set but no validator wired")
			s.channel.Send(errMsg("unauthorized"))
			return false
		}
		u, err := s.deps.Auth.ValidateToken(token)
		if err != nil {
			s.channel.Send(errMsg("unauthorized"))
			return false
		}
		user = u
	} else if token != "" && s.deps.Auth != nil {
		if u, err := s.deps.Auth.ValidateToken(token); err == nil {
			user = u
		}
	}

	s.sess = s.deps.Clients.Add(s.id, s.channel, user)
	s.channel.Send(map[string]any{"type": "id", "id": s.id})
	return true
}

// HandleMessage decodes and dispatches one inbound frame. Malformed JSON or
// a frame without a `type` is logged and silently dropped (there is no
// requestId to reply with on a frame we couldn't even parse); a `type` with
// no registered handler gets an "unknown message type" error reply.
func (s *Session) HandleMessage(data []byte) {
	env, err := decodeEnvelope(data)
	if err != nil || env.Type == "" {
		log.Debug().Str("module", "signaling").Str("clientId", string(s.id)).Msg("dropping malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	handler, ok := handlers[env.Type]
	if !ok {
		s.reply(errMsg("unknown message type: " + env.Type))
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("module", "signaling").Interface("panic", r).Str("type", env.Type).Msg("handler error")
				s.reply(errMsg("handler error"))
			}
		}()
		handler(ctx, s, env)
	}()
}

func (s *Session) reply(payload any) {
	s.deps.Clients.SendTo(s.id, payload)
}

// Disconnect runs the channel-closed cleanup path (spec.md §4.4): close
// producers and remove membership in every room the client was in
// (broadcasting member-left and producer closes along the way via
// RemoveFromAllRooms), close every remaining engine resource, remove the
// client from the registry, and notify every other client process-wide.
func (s *Session) Disconnect() {
	if s.sess == nil || s.closed {
		return
	}
	s.closed = true

	ctx := context.Background()
	s.deps.Clients.RemoveFromAllRooms(ctx, s.id)
	s.deps.Clients.CloseResources(ctx, s.id)
	s.deps.Clients.Remove(s.id)

	if s.deps.Bridge != nil {
		s.deps.Bridge.BroadcastAll(ctx, map[string]any{"type": "leave", "id": s.id}, s.id)
	}
}

func (s *Session) requireSfuEnabled() bool {
	if s.deps.Engine == nil {
		s.reply(errMsg("sfu not enabled"))
		return false
	}
	return true
}

func (s *Session) requireAdmin() bool {
	if s.sess == nil || !s.sess.User.IsAdmin() {
		s.reply(errMsg(core.ErrAdminRequired.Error()))
		return false
	}
	return true
}
