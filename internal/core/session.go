package core

import (
	"sync"
	"time"

	"github.com/confplane/signaling-core/internal/domain"
)

// TransportInfo is the normalized metadata the control plane keeps about a
// transport it owns the id for (the engine owns the actual handle).
type TransportInfo struct {
	Room      domain.RoomName
	Direction domain.Direction
}

// ClientSession is the per-connection state described in spec.md §3. Every
// mutation goes through its methods so the invariants (ids present here must
// exist in the engine's tables) hold under concurrent access.
type ClientSession struct {
	ID          domain.ClientID
	Channel     Channel
	User        *domain.User
	ConnectedAt time.Time

	mu            sync.Mutex
	role          domain.Role
	transports    map[domain.TransportID]struct{}
	transportInfo map[domain.TransportID]TransportInfo
	producers     map[domain.ProducerID]struct{}
	consumers     map[domain.ConsumerID]struct{}
	rooms         map[domain.RoomName]struct{}
}

// NewClientSession creates a session in the default publisher role.
func NewClientSession(id domain.ClientID, ch Channel, user *domain.User, now time.Time) *ClientSession {
	return &ClientSession{
		ID:            id,
		Channel:       ch,
		User:          user,
		ConnectedAt:   now,
		role:          domain.RolePublisher,
		transports:    make(map[domain.TransportID]struct{}),
		transportInfo: make(map[domain.TransportID]TransportInfo),
		producers:     make(map[domain.ProducerID]struct{}),
		consumers:     make(map[domain.ConsumerID]struct{}),
		rooms:         make(map[domain.RoomName]struct{}),
	}
}

func (s *ClientSession) Role() domain.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *ClientSession) SetRole(r domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = r
}

func (s *ClientSession) AddTransport(id domain.TransportID, info TransportInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transports[id] = struct{}{}
	s.transportInfo[id] = info
}

func (s *ClientSession) RemoveTransport(id domain.TransportID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transports, id)
	delete(s.transportInfo, id)
}

func (s *ClientSession) TransportInfo(id domain.TransportID) (TransportInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.transportInfo[id]
	return info, ok
}

func (s *ClientSession) HasTransport(id domain.TransportID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.transports[id]
	return ok
}

func (s *ClientSession) Transports() []domain.TransportID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TransportID, 0, len(s.transports))
	for id := range s.transports {
		out = append(out, id)
	}
	return out
}

func (s *ClientSession) AddProducer(id domain.ProducerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.producers[id] = struct{}{}
}

func (s *ClientSession) RemoveProducer(id domain.ProducerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.producers, id)
}

func (s *ClientSession) Producers() []domain.ProducerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ProducerID, 0, len(s.producers))
	for id := range s.producers {
		out = append(out, id)
	}
	return out
}

func (s *ClientSession) AddConsumer(id domain.ConsumerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers[id] = struct{}{}
}

func (s *ClientSession) RemoveConsumer(id domain.ConsumerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consumers, id)
}

func (s *ClientSession) Consumers() []domain.ConsumerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConsumerID, 0, len(s.consumers))
	for id := range s.consumers {
		out = append(out, id)
	}
	return out
}

func (s *ClientSession) AddRoom(name domain.RoomName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[name] = struct{}{}
}

func (s *ClientSession) RemoveRoom(name domain.RoomName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, name)
}

func (s *ClientSession) Rooms() []domain.RoomName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomName, 0, len(s.rooms))
	for name := range s.rooms {
		out = append(out, name)
	}
	return out
}

func (s *ClientSession) InRoom(name domain.RoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[name]
	return ok
}
