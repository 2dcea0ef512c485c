package engine

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/confplane/signaling-core/internal/domain"
)

// producer is the server-side record of one client's produced track: the
// RTPReceiver pulling packets off the transport, and the relay fanning them
// out to every subscribed consumer.
type producer struct {
	id        domain.ProducerID
	roomName  domain.RoomName
	clientID  domain.ClientID
	transport *transport
	kind      domain.ProducerKind
	createdAt time.Time

	receiver *webrtc.RTPReceiver
	relay    *relay
}

func newProducer(id domain.ProducerID, t *transport, kind domain.ProducerKind, receiver *webrtc.RTPReceiver, codec webrtc.RTPCodecCapability) *producer {
	return &producer{
		id:        id,
		roomName:  t.roomName,
		clientID:  t.clientID,
		transport: t,
		kind:      kind,
		createdAt: time.Now(),
		receiver:  receiver,
		relay:     newRelay(id, receiver, codec),
	}
}

// start launches the relay's forward loop against receiver's first track.
// Must be called once, after receiver.Receive has run — Receive creates the
// RTPReceiver's track(s) synchronously, so Tracks() is already populated by
// the time CreateProducer calls this; the loop itself then blocks on the
// track's ReadRTP until the client actually starts sending.
func (p *producer) start() {
	tracks := p.receiver.Tracks()
	if len(tracks) == 0 {
		return
	}
	go p.relay.loop(tracks[0])
}

func (p *producer) close() {
	p.relay.close()
	_ = p.receiver.Stop()
}
