package engine

import (
	"github.com/pion/webrtc/v4"

	"github.com/confplane/signaling-core/internal/domain"
)

// consumer is the server-side record of one client's consumption of a
// remote producer: the outbound leg of that producer's relay, sent over an
// RTPSender bound to the client's recv transport.
//
// mediasoup's wire protocol creates a consumer paused and expects a separate
// resume message from the client before any RTP flows. This design skips
// that message entirely (spec.md §4.4's "no separate resume message"
// decision): CreateConsumer calls resume itself, inside the same worker job
// that builds the RTPSender, before the consumer is ever handed back to the
// control plane or added to the producer's relay.
type consumer struct {
	id         domain.ConsumerID
	roomName   domain.RoomName
	clientID   domain.ClientID
	producerID domain.ProducerID
	transport  *transport
	kind       domain.ProducerKind

	sender *webrtc.RTPSender
	sub    *outSubscriber
}

func newConsumer(id domain.ConsumerID, t *transport, producerID domain.ProducerID, kind domain.ProducerKind, sender *webrtc.RTPSender, sub *outSubscriber) *consumer {
	return &consumer{
		id:         id,
		roomName:   t.roomName,
		clientID:   t.clientID,
		producerID: producerID,
		transport:  t,
		kind:       kind,
		sender:     sender,
		sub:        sub,
	}
}

func (c *consumer) rtpParameters() webrtc.RTPParameters {
	return c.sender.GetParameters().RTPParameters
}

// resume starts the RTPSender actually transmitting. GetParameters derives
// the SSRC/payload type from the sender's own track and the worker's
// registered codec table, so there is nothing left for the caller to supply.
func (c *consumer) resume() error {
	return c.sender.Send(c.sender.GetParameters())
}

func (c *consumer) close() {
	c.sub.markDelete()
	_ = c.sender.Stop()
}
