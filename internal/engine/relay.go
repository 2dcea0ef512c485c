package engine

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/confplane/signaling-core/internal/domain"
)

// relaySubscriberState is the lifecycle of one outbound leg of a relay. It
// generalizes dkeye-Voice's Relay/OutTrack pair from "one relay per active
// speaker" to "one relay per producer" — every produced track gets a relay
// the moment it is created, and every sfu.consume call attaches a new
// subscriber to that relay rather than opening a second reader on the
// source track.
type relaySubscriberState int32

const (
	subscriberOk relaySubscriberState = iota
	subscriberMuted
	subscriberDelete
)

// outSubscriber is one consumer's outbound leg of a relay: the local track
// packets are rewritten onto, and the atomic state the forward loop checks
// on every packet without taking a lock.
type outSubscriber struct {
	consumerID domain.ConsumerID
	track      *webrtc.TrackLocalStaticRTP
	state      atomic.Int32
}

func newOutSubscriber(id domain.ConsumerID, codec webrtc.RTPCodecCapability) (*outSubscriber, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(codec, string(id), "relay")
	if err != nil {
		return nil, err
	}
	return &outSubscriber{consumerID: id, track: track}, nil
}

func (s *outSubscriber) markDelete() { s.state.Store(int32(subscriberDelete)) }
func (s *outSubscriber) markMuted()  { s.state.Store(int32(subscriberMuted)) }
func (s *outSubscriber) isDeleted() bool {
	return relaySubscriberState(s.state.Load()) == subscriberDelete
}

// relay reads RTP packets off one producer's RTPReceiver and forwards them
// to every subscriber attached to it, pruning deleted subscribers as it
// goes. Grounded on dkeye-Voice's internal/app/relay.go and
// internal/app/sfu/outtrack.go forward loop.
type relay struct {
	producerID domain.ProducerID
	receiver   *webrtc.RTPReceiver
	codec      webrtc.RTPCodecCapability

	mu          sync.RWMutex
	subscribers map[domain.ConsumerID]*outSubscriber

	stop chan struct{}
}

func newRelay(producerID domain.ProducerID, receiver *webrtc.RTPReceiver, codec webrtc.RTPCodecCapability) *relay {
	return &relay{
		producerID:  producerID,
		receiver:    receiver,
		codec:       codec,
		subscribers: make(map[domain.ConsumerID]*outSubscriber),
		stop:        make(chan struct{}),
	}
}

func (r *relay) addSubscriber(s *outSubscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[s.consumerID] = s
}

func (r *relay) markSubscriberDelete(id domain.ConsumerID) {
	r.mu.RLock()
	s, ok := r.subscribers[id]
	r.mu.RUnlock()
	if ok {
		s.markDelete()
	}
}

func (r *relay) subscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// loop runs until the receiver's track ends or close() is called. It must
// run in its own goroutine, started by the caller right after the receiver
// is wired up.
func (r *relay) loop(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}

	for {
		select {
		case <-r.stop:
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Warn().Str("module", "engine.relay").Str("producerId", string(r.producerID)).Err(err).Msg("relay read failed")
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		r.forward(pkt)
	}
}

func (r *relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, s := range r.subscribers {
		state := relaySubscriberState(s.state.Load())
		if state == subscriberDelete {
			continue
		}
		if state == subscriberMuted {
			continue
		}
		if err := s.track.WriteRTP(pkt); err != nil {
			log.Debug().Str("module", "engine.relay").Str("consumerId", string(id)).Err(err).Msg("forward failed")
		}
	}
	r.cleanupDeletedLocked()
}

// cleanupDeletedLocked collects subscribers marked for deletion. Caller must
// hold at least the read lock (forward() does); the map itself is only
// mutated by pruneSubscribers, which runs in its own goroutine and takes the
// write lock once the caller has released its read lock.
func (r *relay) cleanupDeletedLocked() {
	var dead []domain.ConsumerID
	for id, s := range r.subscribers {
		if s.isDeleted() {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}
	go r.pruneSubscribers(dead)
}

func (r *relay) pruneSubscribers(ids []domain.ConsumerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.subscribers, id)
	}
}

// close marks every subscriber for deletion and stops the forward loop.
// Idempotent: safe to call more than once.
func (r *relay) close() {
	select {
	case <-r.stop:
		return
	default:
		close(r.stop)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subscribers {
		s.markDelete()
	}
}
