package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

// produceRTPParameters is the wire shape of sfu.produce's rtpParameters
// field: the generic codec/header-extension set plus the one piece the
// ORTC receiver actually needs up front, the SSRC of the stream the client
// is about to send (mediasoup's own producer rtpParameters carry the same
// encodings[].ssrc field for this reason).
type produceRTPParameters struct {
	webrtc.RTPParameters
	Encodings []struct {
		SSRC webrtc.SSRC
	}
}

func init() {
	register("sfu.createTransport", handleCreateTransport)
	register("sfu.connectTransport", handleConnectTransport)
	register("sfu.produce", handleProduce)
	register("sfu.consume", handleConsume)
	register("sfu.listProducers", handleListProducers)
	register("sfu.closeProducer", handleCloseProducer)
}

func handleCreateTransport(ctx context.Context, s *Session, env envelope) {
	if !s.requireSfuEnabled() {
		return
	}

	roomName := domain.RoomName(env.str("room"))
	if roomName == "" {
		s.reply(errMsg("missing field: room"))
		return
	}
	if !s.sess.InRoom(roomName) {
		s.reply(errMsg(core.ErrRoomNotFound.Error()))
		return
	}

	direction := domain.DirectionSend
	if raw := env.str("direction"); raw != "" {
		direction = domain.Direction(raw)
	}

	result, err := s.deps.Engine.CreateWebRTCTransport(ctx, core.CreateTransportParams{
		RoomName:  roomName,
		ClientID:  s.id,
		Direction: direction,
	})
	if err != nil {
		log.Warn().Str("module", "signaling").Err(err).Msg("createTransport failed")
		s.reply(errMsg("sfu.createTransport failed"))
		return
	}

	s.sess.AddTransport(result.TransportID, core.TransportInfo{Room: roomName, Direction: direction})

	s.reply(map[string]any{
		"type":                  "sfu.transportCreated",
		"requestId":             env.str("requestId"),
		"transportId":           result.TransportID,
		"iceParameters":         result.IceParameters,
		"iceCandidates":         result.IceCandidates,
		"dtlsParameters":        result.DtlsParameters,
		"iceServers":            result.IceServers,
		"routerRtpCapabilities": result.RouterRtpCapabilities,
		"direction":             result.Direction,
	})
}

func handleConnectTransport(ctx context.Context, s *Session, env envelope) {
	if !s.requireSfuEnabled() {
		return
	}

	transportID := domain.TransportID(env.str("transportId"))
	if transportID == "" {
		s.reply(errMsg("missing field: transportId"))
		return
	}
	if !s.sess.HasTransport(transportID) {
		s.reply(errMsg("transport not found"))
		return
	}

	var dtls webrtc.DTLSParameters
	if err := env.decode("dtlsParameters", &dtls); err != nil {
		if errors.Is(err, errFieldAbsent) {
			s.reply(errMsg("missing field: dtlsParameters"))
		} else {
			s.reply(errMsg("invalid field: dtlsParameters"))
		}
		return
	}

	if err := s.deps.Engine.ConnectTransport(ctx, core.ConnectTransportParams{
		TransportID:    transportID,
		DtlsParameters: dtls,
	}); err != nil {
		log.Warn().Str("module", "signaling").Err(err).Msg("connectTransport failed")
		s.reply(errMsg("sfu.connectTransport failed"))
		return
	}

	s.reply(map[string]any{
		"type":        "sfu.transportConnected",
		"requestId":   env.str("requestId"),
		"transportId": transportID,
	})
}

// handleProduce implements spec.md §4.4's produce constraint: observers may
// not produce; a video producer is rejected once the room's configured
// maxVideoProducers is reached.
func handleProduce(ctx context.Context, s *Session, env envelope) {
	if !s.requireSfuEnabled() {
		return
	}

	if s.sess.Role() == domain.RoleObserver {
		s.reply(errMsg(core.ErrObserversDisallowed.Error()))
		return
	}

	transportID := domain.TransportID(env.str("transportId"))
	roomName := domain.RoomName(env.str("room"))
	kind := domain.ProducerKind(env.str("kind"))

	if transportID == "" || roomName == "" || kind == "" {
		s.reply(errMsg("missing field: transportId, room, or kind"))
		return
	}
	if !s.sess.HasTransport(transportID) {
		s.reply(errMsg("transport not found"))
		return
	}

	room, ok := s.deps.Rooms.Get(roomName)
	if !ok {
		s.reply(errMsg(core.ErrRoomNotFound.Error()))
		return
	}

	if kind == domain.KindVideo && room.Options.MaxVideoProducers > 0 {
		if n := room.CountVideoProducers(); n >= room.Options.MaxVideoProducers {
			s.reply(errMsg(fmt.Sprintf("room already has %d video producers", room.Options.MaxVideoProducers)))
			return
		}
	}

	var wire produceRTPParameters
	if err := env.decode("rtpParameters", &wire); err != nil {
		if errors.Is(err, errFieldAbsent) {
			s.reply(errMsg("missing field: rtpParameters"))
		} else {
			s.reply(errMsg("invalid field: rtpParameters"))
		}
		return
	}
	if len(wire.Encodings) == 0 {
		s.reply(errMsg("missing field: rtpParameters.encodings[0].ssrc"))
		return
	}

	result, err := s.deps.Engine.CreateProducer(ctx, core.CreateProducerParams{
		TransportID:   transportID,
		RoomName:      roomName,
		ClientID:      s.id,
		Kind:          kind,
		RtpParameters: wire.RTPParameters,
		SSRC:          wire.Encodings[0].SSRC,
	})
	if err != nil {
		log.Warn().Str("module", "signaling").Err(err).Msg("produce failed")
		s.reply(errMsg("sfu.produce failed"))
		return
	}

	room.AddProducer(result.ProducerID, core.ProducerRecord{ClientID: s.id, Kind: result.Kind, CreatedAt: time.Now()})
	s.sess.AddProducer(result.ProducerID)

	s.reply(map[string]any{
		"type":       "sfu.produced",
		"requestId":  env.str("requestId"),
		"producerId": result.ProducerID,
		"kind":       result.Kind,
	})

	if s.deps.Bridge != nil {
		var userName string
		if s.sess.User != nil {
			userName = s.sess.User.Name
		}
		s.deps.Bridge.BroadcastToRoom(roomName, map[string]any{
			"type":         "sfu.newProducer",
			"room":         roomName,
			"producerId":   result.ProducerID,
			"clientId":     s.id,
			"producerUser": userName,
			"kind":         result.Kind,
		}, s.id)
	}
}

// handleConsume implements spec.md §4.4's consume constraint: the producer
// must be listed in the room's producers table and the consuming client
// must own the named transport; capability matching is delegated to the
// engine via canConsume.
func handleConsume(ctx context.Context, s *Session, env envelope) {
	if !s.requireSfuEnabled() {
		return
	}

	transportID := domain.TransportID(env.str("transportId"))
	producerID := domain.ProducerID(env.str("producerId"))
	roomName := domain.RoomName(env.str("room"))

	if transportID == "" || producerID == "" || roomName == "" {
		s.reply(errMsg("missing field: transportId, producerId, or room"))
		return
	}
	if !s.sess.HasTransport(transportID) {
		s.reply(errMsg("transport not found"))
		return
	}

	room, ok := s.deps.Rooms.Get(roomName)
	if !ok {
		s.reply(errMsg(core.ErrRoomNotFound.Error()))
		return
	}
	if _, ok := room.Producer(producerID); !ok {
		s.reply(errMsg("producer not found"))
		return
	}

	var caps core.RTPCapabilities
	if err := env.decode("rtpCapabilities", &caps); err != nil {
		if errors.Is(err, errFieldAbsent) {
			s.reply(errMsg("missing field: rtpCapabilities"))
		} else {
			s.reply(errMsg("invalid field: rtpCapabilities"))
		}
		return
	}

	result, err := s.deps.Engine.CreateConsumer(ctx, core.CreateConsumerParams{
		TransportID:     transportID,
		ProducerID:      producerID,
		ClientID:        s.id,
		RtpCapabilities: caps,
	})
	if err != nil {
		if err == core.ErrCannotConsume {
			s.reply(errMsg("cannot consume with provided rtpCapabilities"))
			return
		}
		log.Warn().Str("module", "signaling").Err(err).Msg("consume failed")
		s.reply(errMsg("sfu.consume failed"))
		return
	}

	s.sess.AddConsumer(result.ConsumerID)

	s.reply(map[string]any{
		"type":          "sfu.consumed",
		"requestId":     env.str("requestId"),
		"consumerId":    result.ConsumerID,
		"producerId":    result.ProducerID,
		"kind":          result.Kind,
		"rtpParameters": result.RtpParameters,
	})
}

func handleListProducers(ctx context.Context, s *Session, env envelope) {
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

	s.reply(map[string]any{
		"type":      "sfu.producers",
		"room":      roomName,
		"producers": s.deps.Rooms.ProducersPayload(room),
	})
}

// handleCloseProducer is the explicit close path. It does not touch the
// room's producer table itself: the engine's CloseProducer emits
// producer-closed, and the Event Bridge — the same code that handles
// engine-initiated closes such as an ICE failure — removes the room entry and
// broadcasts sfu.producerClosed to the room, this client included.
func handleCloseProducer(ctx context.Context, s *Session, env envelope) {
	if !s.requireSfuEnabled() {
		return
	}

	producerID := domain.ProducerID(env.str("producerId"))
	if producerID == "" {
		s.reply(errMsg("missing field: producerId"))
		return
	}

	if err := s.deps.Engine.CloseProducer(ctx, producerID); err != nil {
		log.Warn().Str("module", "signaling").Err(err).Msg("closeProducer failed")
	}
	s.sess.RemoveProducer(producerID)

	s.reply(map[string]any{
		"type":       "sfu.producerClosed",
		"requestId":  env.str("requestId"),
		"producerId": producerID,
	})
}
