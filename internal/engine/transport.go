package engine

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/confplane/signaling-core/internal/domain"
)

// transport wraps the three ORTC primitives (ICE gatherer, ICE transport,
// DTLS transport) that together stand in for mediasoup's WebRtcTransport.
// The server runs ICE-lite: it gathers and advertises its own candidates and
// starts its ICE transport in the controlled role without needing the
// remote's ICE parameters, so ConnectTransport only has to carry the
// client's DTLS parameters.
type transport struct {
	id        domain.TransportID
	roomName  domain.RoomName
	clientID  domain.ClientID
	direction domain.Direction

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	mu         sync.Mutex
	closed     bool
	onClose    func(reason string)
}

func newTransport(api *webrtc.API, iceServers []webrtc.ICEServer, p transportParams) (*transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: iceServers})
	if err != nil {
		return nil, err
	}

	iceTransport := api.NewICETransport(gatherer)

	cert, err := generateCertificate()
	if err != nil {
		return nil, err
	}
	dtlsTransport, err := api.NewDTLSTransport(iceTransport, []webrtc.Certificate{*cert})
	if err != nil {
		return nil, err
	}

	if err := gatherer.Gather(); err != nil {
		return nil, err
	}

	t := &transport{
		id:        p.id,
		roomName:  p.roomName,
		clientID:  p.clientID,
		direction: p.direction,
		gatherer:  gatherer,
		ice:       iceTransport,
		dtls:      dtlsTransport,
	}

	iceTransport.OnConnectionStateChange(func(state webrtc.ICETransportState) {
		if state == webrtc.ICETransportStateFailed || state == webrtc.ICETransportStateDisconnected || state == webrtc.ICETransportStateClosed {
			t.fireClose(state.String())
		}
	})

	return t, nil
}

type transportParams struct {
	id        domain.TransportID
	roomName  domain.RoomName
	clientID  domain.ClientID
	direction domain.Direction
}

func (t *transport) localParameters() (webrtc.ICEParameters, []webrtc.ICECandidate, webrtc.DTLSParameters, error) {
	iceParams, err := t.gatherer.GetLocalParameters()
	if err != nil {
		return webrtc.ICEParameters{}, nil, webrtc.DTLSParameters{}, err
	}
	candidates, err := t.gatherer.GetLocalCandidates()
	if err != nil {
		return webrtc.ICEParameters{}, nil, webrtc.DTLSParameters{}, err
	}
	dtlsParams, err := t.dtls.GetLocalParameters()
	if err != nil {
		return webrtc.ICEParameters{}, nil, webrtc.DTLSParameters{}, err
	}
	return iceParams, candidates, dtlsParams, nil
}

func (t *transport) connect(remoteDTLS webrtc.DTLSParameters) error {
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(t.gatherer, webrtc.ICEParameters{}, &role); err != nil {
		return err
	}
	return t.dtls.Start(remoteDTLS)
}

// onCloseFunc registers fn to run (at most once) when the transport closes,
// whether from an explicit fireClose call (CloseTransport) or an ICE-level
// failure.
func (t *transport) onCloseFunc(fn func(reason string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *transport) fireClose(reason string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	fn := t.onClose
	t.mu.Unlock()

	_ = t.dtls.Stop()
	_ = t.ice.Stop()

	if fn != nil {
		fn(reason)
	}
}

func generateCertificate() (*webrtc.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	cert, err := webrtc.GenerateCertificate(key)
	if err != nil {
		return nil, err
	}
	return cert, nil
}
