package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

// Config carries the settings the Adapter needs at startup: the fixed ICE
// server list advertised to every transport, and the IP(s) pion should bind
// and announce as candidates.
type Config struct {
	NumWorkers    int
	ICEServers    []webrtc.ICEServer
	ListenIPs     []string
	AnnouncedIP   string
}

// Adapter is the concrete MediaEngine: a fixed pool of Workers, each owning
// its own *webrtc.API, with rooms bound round-robin to a worker the first
// time they're touched. This is the control plane's sole integration point
// with pion/webrtc; everything upstream of it only ever sees domain IDs and
// the wire-shaped types in internal/core.
type Adapter struct {
	cfg     Config
	workers []*Worker
	next    atomic.Uint64

	mu    sync.RWMutex
	rooms map[domain.RoomName]*roomRouter

	transportIndex map[domain.TransportID]*roomRouter
	producerIndex  map[domain.ProducerID]*roomRouter
	consumerIndex  map[domain.ConsumerID]*roomRouter

	bus eventBus
}

func NewAdapter(cfg Config) (*Adapter, error) {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}

	se := webrtc.SettingEngine{}
	se.SetLite(true)
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if len(cfg.ListenIPs) > 0 {
		if err := se.SetEphemeralUDPPortRange(0, 0); err != nil {
			return nil, err
		}
		allowed := make(map[string]bool, len(cfg.ListenIPs))
		for _, ip := range cfg.ListenIPs {
			allowed[ip] = true
		}
		if !allowed["0.0.0.0"] && !allowed["::"] {
			se.SetIPFilter(func(ip net.IP) bool { return allowed[ip.String()] })
		}
	}

	a := &Adapter{
		cfg:            cfg,
		rooms:          make(map[domain.RoomName]*roomRouter),
		transportIndex: make(map[domain.TransportID]*roomRouter),
		producerIndex:  make(map[domain.ProducerID]*roomRouter),
		consumerIndex:  make(map[domain.ConsumerID]*roomRouter),
	}

	for i := 0; i < cfg.NumWorkers; i++ {
		w, err := newWorker(i, se)
		if err != nil {
			return nil, fmt.Errorf("engine: starting worker %d: %w", i, err)
		}
		a.workers = append(a.workers, w)
	}

	log.Info().Str("module", "engine.adapter").Int("workers", len(a.workers)).Msg("media engine started")
	return a, nil
}

// roomFor returns the roomRouter bound to name, creating and binding it to
// the next worker round-robin on first touch.
func (a *Adapter) roomFor(name domain.RoomName) *roomRouter {
	a.mu.RLock()
	rr, ok := a.rooms[name]
	a.mu.RUnlock()
	if ok {
		return rr
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if rr, ok = a.rooms[name]; ok {
		return rr
	}

	idx := a.next.Add(1) - 1
	w := a.workers[idx%uint64(len(a.workers))]
	rr = newRoomRouter(name, w)
	a.rooms[name] = rr
	return rr
}

func (a *Adapter) CreateWebRTCTransport(ctx context.Context, p core.CreateTransportParams) (core.TransportCreated, error) {
	rr := a.roomFor(p.RoomName)

	result := make(chan struct {
		t   *transport
		err error
	}, 1)

	rr.worker.submit(func() {
		id := domain.TransportID(uuid.NewString())
		t, err := newTransport(rr.worker.api, a.cfg.ICEServers, transportParams{
			id:        id,
			roomName:  p.RoomName,
			clientID:  p.ClientID,
			direction: p.Direction,
		})
		result <- struct {
			t   *transport
			err error
		}{t, err}
	})

	select {
	case r := <-result:
		if r.err != nil {
			return core.TransportCreated{}, r.err
		}
		t := r.t
		t.onCloseFunc(func(reason string) {
			a.handleTransportClosed(rr, t, reason)
		})
		rr.addTransport(t)
		a.mu.Lock()
		a.transportIndex[t.id] = rr
		a.mu.Unlock()

		iceParams, candidates, dtlsParams, err := t.localParameters()
		if err != nil {
			return core.TransportCreated{}, err
		}

		return core.TransportCreated{
			TransportID:           t.id,
			IceParameters:         iceParams,
			IceCandidates:         candidates,
			DtlsParameters:        dtlsParams,
			IceServers:            a.cfg.ICEServers,
			RouterRtpCapabilities: routerRTPCapabilities(),
			Direction:             p.Direction,
		}, nil
	case <-ctx.Done():
		return core.TransportCreated{}, ctx.Err()
	}
}

func (a *Adapter) ConnectTransport(ctx context.Context, p core.ConnectTransportParams) error {
	rr, t, err := a.lookupTransport(p.TransportID)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	rr.worker.submit(func() {
		errCh <- t.connect(p.DtlsParameters)
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) CloseTransport(ctx context.Context, id domain.TransportID) error {
	_, t, err := a.lookupTransport(id)
	if err != nil {
		return err
	}
	t.fireClose("closed by control plane")
	return nil
}

func (a *Adapter) CreateProducer(ctx context.Context, p core.CreateProducerParams) (core.ProducedResult, error) {
	rr, t, err := a.lookupTransport(p.TransportID)
	if err != nil {
		return core.ProducedResult{}, err
	}
	if t.roomName != p.RoomName {
		return core.ProducedResult{}, core.ErrTransportWrongRoom
	}

	codec := codecForKind(p.Kind)

	type res struct {
		pr  *producer
		err error
	}
	resCh := make(chan res, 1)

	rr.worker.submit(func() {
		kind := webrtc.RTPCodecTypeAudio
		if p.Kind == domain.KindVideo {
			kind = webrtc.RTPCodecTypeVideo
		}
		receiver, err := rr.worker.api.NewRTPReceiver(kind, t.dtls)
		if err != nil {
			resCh <- res{nil, err}
			return
		}

		if err := receiver.Receive(webrtc.RTPReceiveParameters{
			Encodings: []webrtc.RTPDecodingParameters{
				{RTPCodingParameters: webrtc.RTPCodingParameters{
					SSRC:        p.SSRC,
					PayloadType: payloadTypeForKind(p.Kind),
				}},
			},
		}); err != nil {
			resCh <- res{nil, err}
			return
		}

		id := domain.ProducerID(uuid.NewString())
		prod := newProducer(id, t, p.Kind, receiver, codec)
		resCh <- res{prod, nil}
	})

	r := <-resCh
	if r.err != nil {
		return core.ProducedResult{}, r.err
	}

	rr.addProducer(r.pr)
	a.mu.Lock()
	a.producerIndex[r.pr.id] = rr
	a.mu.Unlock()
	r.pr.start()

	return core.ProducedResult{ProducerID: r.pr.id, Kind: r.pr.kind}, nil
}

func (a *Adapter) CreateConsumer(ctx context.Context, p core.CreateConsumerParams) (core.ConsumedResult, error) {
	rr, t, err := a.lookupTransport(p.TransportID)
	if err != nil {
		return core.ConsumedResult{}, err
	}

	a.mu.RLock()
	prodRR, ok := a.producerIndex[p.ProducerID]
	a.mu.RUnlock()
	if !ok || prodRR != rr {
		return core.ConsumedResult{}, core.ErrProducerNotFound
	}

	prod := rr.lookupProducer(p.ProducerID)
	if prod == nil {
		return core.ConsumedResult{}, core.ErrProducerNotFound
	}
	if !canConsume(p.RtpCapabilities, string(prod.kind)) {
		return core.ConsumedResult{}, core.ErrCannotConsume
	}

	type res struct {
		c   *consumer
		err error
	}
	resCh := make(chan res, 1)

	rr.worker.submit(func() {
		id := domain.ConsumerID(uuid.NewString())
		sub, err := newOutSubscriber(id, codecForKind(prod.kind))
		if err != nil {
			resCh <- res{nil, err}
			return
		}
		sender, err := rr.worker.api.NewRTPSender(sub.track, t.dtls)
		if err != nil {
			resCh <- res{nil, err}
			return
		}
		c := newConsumer(id, t, p.ProducerID, prod.kind, sender, sub)
		if err := c.resume(); err != nil {
			resCh <- res{nil, err}
			return
		}
		prod.relay.addSubscriber(sub)
		resCh <- res{c, nil}
	})

	r := <-resCh
	if r.err != nil {
		return core.ConsumedResult{}, r.err
	}

	rr.addConsumer(r.c)
	a.mu.Lock()
	a.consumerIndex[r.c.id] = rr
	a.mu.Unlock()

	return core.ConsumedResult{
		ConsumerID:    r.c.id,
		ProducerID:    p.ProducerID,
		Kind:          r.c.kind,
		RtpParameters: r.c.rtpParameters(),
	}, nil
}

// CloseProducer is the explicit, control-plane-initiated entry point into
// closeProducer. The engine-internal entry point is the transport-close
// cascade in handleTransportClosed; both drive the exact same teardown.
func (a *Adapter) CloseProducer(ctx context.Context, id domain.ProducerID) error {
	a.mu.RLock()
	rr, ok := a.producerIndex[id]
	a.mu.RUnlock()
	if !ok {
		return core.ErrProducerNotFound
	}
	a.closeProducer(rr, id, "closed by control plane")
	return nil
}

// closeProducer tears down prod's relay, closes every consumer subscribed to
// it (spec.md §4.3: producerclose feeds the consumer's own idempotent
// cleanup — a Consumer is bound to exactly one producer), and emits
// producer-closed. Safe to call more than once or concurrently with
// CloseConsumer racing the same IDs: the producerIndex delete gates it.
func (a *Adapter) closeProducer(rr *roomRouter, id domain.ProducerID, reason string) {
	a.mu.Lock()
	_, ok := a.producerIndex[id]
	delete(a.producerIndex, id)
	a.mu.Unlock()
	if !ok {
		return
	}

	prod := rr.lookupProducer(id)
	rr.removeProducer(id)
	if prod == nil {
		return
	}

	for _, cid := range rr.consumersOfProducer(id) {
		a.closeConsumer(rr, cid, reason)
	}
	prod.close()

	a.bus.emit(core.Event{
		Kind:     core.EventProducerClosed,
		RoomName: prod.roomName,
		ClientID: prod.clientID,
		ID:       string(id),
		Reason:   reason,
	})
}

// CloseConsumer is the explicit, control-plane-initiated entry point into
// closeConsumer; see closeProducer's comment for the engine-internal ones.
func (a *Adapter) CloseConsumer(ctx context.Context, id domain.ConsumerID) error {
	a.mu.RLock()
	rr, ok := a.consumerIndex[id]
	a.mu.RUnlock()
	if !ok {
		return nil
	}
	a.closeConsumer(rr, id, "closed by control plane")
	return nil
}

func (a *Adapter) closeConsumer(rr *roomRouter, id domain.ConsumerID, reason string) {
	a.mu.Lock()
	_, ok := a.consumerIndex[id]
	delete(a.consumerIndex, id)
	a.mu.Unlock()
	if !ok {
		return
	}

	c := rr.lookupConsumer(id)
	rr.removeConsumer(id)
	if c == nil {
		return
	}
	c.close()

	a.bus.emit(core.Event{
		Kind:     core.EventConsumerClosed,
		RoomName: c.roomName,
		ClientID: c.clientID,
		ID:       string(id),
		Reason:   reason,
	})
}

// CloseClient closes every transport tagged with id across every room. This
// transitively closes that client's producers and consumers through the
// normal transport-close path.
func (a *Adapter) CloseClient(ctx context.Context, id domain.ClientID) error {
	a.mu.RLock()
	var toClose []domain.TransportID
	for tid, rr := range a.transportIndex {
		if t := rr.lookupTransport(tid); t != nil && t.clientID == id {
			toClose = append(toClose, tid)
		}
	}
	a.mu.RUnlock()

	for _, tid := range toClose {
		_ = a.CloseTransport(ctx, tid)
	}
	return nil
}

func (a *Adapter) RoomsOverview() core.RoomOverview {
	a.mu.RLock()
	defer a.mu.RUnlock()

	overview := core.RoomOverview{}
	for name, rr := range a.rooms {
		transports, producers, consumers := rr.counts()
		_ = transports
		overview.Rooms = append(overview.Rooms, core.RoomMetric{
			Name:      name,
			Producers: producers,
			Consumers: consumers,
		})
	}
	return overview
}

func (a *Adapter) Metrics() core.EngineMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m := core.EngineMetrics{Workers: len(a.workers), Rooms: len(a.rooms)}
	for _, rr := range a.rooms {
		transports, producers, consumers := rr.counts()
		m.ActiveTransports += transports
		m.ActiveProducers += producers
		m.ActiveConsumers += consumers
		m.TotalProducers += rr.totalProducers.Load()
		m.TotalConsumers += rr.totalConsumers.Load()
	}
	return m
}

func (a *Adapter) Subscribe(fn func(core.Event)) {
	a.bus.subscribe(fn)
}

func (a *Adapter) lookupTransport(id domain.TransportID) (*roomRouter, *transport, error) {
	a.mu.RLock()
	rr, ok := a.transportIndex[id]
	a.mu.RUnlock()
	if !ok {
		return nil, nil, core.ErrTransportNotFound
	}
	t := rr.lookupTransport(id)
	if t == nil {
		return nil, nil, core.ErrTransportNotFound
	}
	return rr, t, nil
}

// handleTransportClosed is the engine-internal entry point into the
// transportclose cascade spec.md §4.3 requires: every producer built on the
// dying transport is closed (which in turn closes its own consumers), then
// every consumer still bound to the transport on the receiving side. A
// producer's consumers can live on a different client's transport than the
// one that just died, so this can't rely on closeProducer's cascade alone
// to reach them — it only reaches consumers of producers that died here.
func (a *Adapter) handleTransportClosed(rr *roomRouter, t *transport, reason string) {
	rr.removeTransport(t.id)
	a.mu.Lock()
	delete(a.transportIndex, t.id)
	a.mu.Unlock()

	for _, pid := range rr.producersOnTransport(t.id) {
		a.closeProducer(rr, pid, reason)
	}
	for _, cid := range rr.consumersOnTransport(t.id) {
		a.closeConsumer(rr, cid, reason)
	}

	a.bus.emit(core.Event{
		Kind:     core.EventTransportClosed,
		RoomName: t.roomName,
		ClientID: t.clientID,
		ID:       string(t.id),
		Reason:   reason,
	})
}

func codecForKind(kind domain.ProducerKind) webrtc.RTPCodecCapability {
	if kind == domain.KindVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

// payloadTypeForKind returns the fixed payload type registerCodecs assigned
// to kind's codec (codecs.go). There is no SDP offer/answer to negotiate a
// payload type through in this ORTC design, so the pair is fixed up front
// and advertised to clients via routerRtpCapabilities.
func payloadTypeForKind(kind domain.ProducerKind) webrtc.PayloadType {
	if kind == domain.KindVideo {
		return 96
	}
	return 111
}
