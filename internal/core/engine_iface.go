package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/confplane/signaling-core/internal/domain"
)

// CreateTransportParams is the argument to MediaEngine.CreateWebRTCTransport.
type CreateTransportParams struct {
	RoomName  domain.RoomName
	ClientID  domain.ClientID
	Direction domain.Direction
}

// ConnectTransportParams is the argument to MediaEngine.ConnectTransport.
type ConnectTransportParams struct {
	TransportID    domain.TransportID
	DtlsParameters webrtc.DTLSParameters
}

// CreateProducerParams is the argument to MediaEngine.CreateProducer. SSRC
// is the stream identifier the client is about to send, taken from
// rtpParameters.encodings[0].ssrc on the wire — the one piece of the ORTC
// receiver's RTPReceiveParameters that RtpParameters itself doesn't carry.
type CreateProducerParams struct {
	TransportID   domain.TransportID
	RoomName      domain.RoomName
	ClientID      domain.ClientID
	Kind          domain.ProducerKind
	RtpParameters webrtc.RTPParameters
	SSRC          webrtc.SSRC
}

// CreateConsumerParams is the argument to MediaEngine.CreateConsumer.
type CreateConsumerParams struct {
	TransportID     domain.TransportID
	ProducerID      domain.ProducerID
	ClientID        domain.ClientID
	RtpCapabilities RTPCapabilities
}

// RoomMetric is one room's summary in RoomsOverview.
type RoomMetric struct {
	Name      domain.RoomName `json:"name"`
	Producers int             `json:"producers"`
	Consumers int             `json:"consumers"`
}

// RoomOverview is the reply payload backing admin.rooms / admin.metrics.
type RoomOverview struct {
	Rooms []RoomMetric `json:"rooms"`
}

// EngineMetrics is the reply payload for admin.metrics.
type EngineMetrics struct {
	Workers           int    `json:"workers"`
	Rooms             int    `json:"rooms"`
	TotalProducers    uint64 `json:"totalProducers"`
	TotalConsumers    uint64 `json:"totalConsumers"`
	ActiveTransports  int    `json:"activeTransports"`
	ActiveProducers   int    `json:"activeProducers"`
	ActiveConsumers   int    `json:"activeConsumers"`
}

// EventKind is a closed sum of the three Media Engine lifecycle events the
// Event Bridge subscribes to at startup.
type EventKind int

const (
	EventTransportClosed EventKind = iota
	EventProducerClosed
	EventConsumerClosed
)

func (k EventKind) String() string {
	switch k {
	case EventTransportClosed:
		return "transport-closed"
	case EventProducerClosed:
		return "producer-closed"
	case EventConsumerClosed:
		return "consumer-closed"
	default:
		return "unknown"
	}
}

// Event is emitted by the Media Engine Adapter for every lifecycle
// transition, whether it came from an explicit close call or from inside the
// engine (a transport dying, a close cascading to dependent resources).
type Event struct {
	Kind     EventKind
	RoomName domain.RoomName
	ClientID domain.ClientID
	ID       string // TransportID, ProducerID or ConsumerID depending on Kind
	Reason   string
}

// MediaEngine is the control plane's view of the external Media Engine.
// internal/engine.Adapter is the concrete implementation; tests substitute a
// hand-written stateful fake (internal/signaling's fakeEngine, internal/core's
// fakeEngine) since the scenarios need call-sequence state, not call-count
// assertions.
//
// Every method may suspend; callers must never hold a registry lock across a
// call into this interface — stage a decision, release, call, reacquire.
type MediaEngine interface {
	CreateWebRTCTransport(ctx context.Context, p CreateTransportParams) (TransportCreated, error)
	ConnectTransport(ctx context.Context, p ConnectTransportParams) error
	CloseTransport(ctx context.Context, id domain.TransportID) error

	CreateProducer(ctx context.Context, p CreateProducerParams) (ProducedResult, error)
	CreateConsumer(ctx context.Context, p CreateConsumerParams) (ConsumedResult, error)
	CloseProducer(ctx context.Context, id domain.ProducerID) error
	CloseConsumer(ctx context.Context, id domain.ConsumerID) error

	// CloseClient closes every transport/producer/consumer tagged with id.
	// Safe to call multiple times.
	CloseClient(ctx context.Context, id domain.ClientID) error

	RoomsOverview() RoomOverview
	Metrics() EngineMetrics

	// Subscribe registers fn for every lifecycle event. Called once at
	// startup by the Event Bridge. fn may be invoked concurrently from
	// multiple workers and must not block.
	Subscribe(fn func(Event))
}
