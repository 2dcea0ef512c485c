package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/confplane/signaling-core/internal/domain"
)

// RTPCapabilities mirrors the capability-negotiation shape this protocol
// exchanges with clients: the set of codecs a peer is willing to receive.
// canConsume checks a consumer's requested capabilities against this set.
type RTPCapabilities struct {
	Codecs []webrtc.RTPCodecCapability `json:"codecs"`
}

// TransportCreated is the reply payload for sfu.createTransport.
type TransportCreated struct {
	TransportID           domain.TransportID    `json:"transportId"`
	IceParameters         webrtc.ICEParameters  `json:"iceParameters"`
	IceCandidates         []webrtc.ICECandidate `json:"iceCandidates"`
	DtlsParameters        webrtc.DTLSParameters `json:"dtlsParameters"`
	IceServers            []webrtc.ICEServer    `json:"iceServers"`
	RouterRtpCapabilities RTPCapabilities       `json:"routerRtpCapabilities"`
	Direction             domain.Direction      `json:"direction"`
}

// ProducedResult is the reply payload for sfu.produce.
type ProducedResult struct {
	ProducerID domain.ProducerID   `json:"producerId"`
	Kind       domain.ProducerKind `json:"kind"`
}

// ConsumedResult is the reply payload for sfu.consume.
type ConsumedResult struct {
	ConsumerID    domain.ConsumerID    `json:"consumerId"`
	ProducerID    domain.ProducerID    `json:"producerId"`
	Kind          domain.ProducerKind  `json:"kind"`
	RtpParameters webrtc.RTPParameters `json:"rtpParameters"`
}
