package core

import (
	"sync"
	"time"

	"github.com/confplane/signaling-core/internal/domain"
)

// ProducerRecord is the room's view of a producer (spec.md §3).
type ProducerRecord struct {
	ClientID  domain.ClientID
	Kind      domain.ProducerKind
	CreatedAt time.Time
}

// Room is the stateful, lock-guarded counterpart to the plain domain.Room
// name: membership, roles, producers, and ownership, mutated only through its
// methods so the spec's invariants hold under concurrent handlers.
type Room struct {
	Name      domain.RoomName
	Options   domain.RoomOptions
	CreatedAt time.Time

	mu          sync.RWMutex
	order       []domain.ClientID // insertion order, for owner reassignment scans
	memberRoles map[domain.ClientID]domain.Role
	observers   map[domain.ClientID]struct{}
	moderators  map[domain.ClientID]struct{}
	ownerID     domain.ClientID
	producers   map[domain.ProducerID]ProducerRecord
}

func newRoom(name domain.RoomName, opts domain.RoomOptions, now time.Time) *Room {
	return &Room{
		Name:        name,
		Options:     opts,
		CreatedAt:   now,
		memberRoles: make(map[domain.ClientID]domain.Role),
		observers:   make(map[domain.ClientID]struct{}),
		moderators:  make(map[domain.ClientID]struct{}),
		producers:   make(map[domain.ProducerID]ProducerRecord),
	}
}

// AddMember adds id with role, updating observers/moderators and, if there is
// no current owner and role is not observer, making id the owner.
func (r *Room) AddMember(id domain.ClientID, role domain.Role) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.memberRoles[id]; !exists {
		r.order = append(r.order, id)
	}
	r.memberRoles[id] = role
	delete(r.observers, id)
	delete(r.moderators, id)

	switch role {
	case domain.RoleObserver:
		r.observers[id] = struct{}{}
	case domain.RoleModerator:
		r.moderators[id] = struct{}{}
	}

	if r.ownerID == "" && role != domain.RoleObserver {
		r.ownerID = id
	}
}

// RemoveMember removes id and, if it was the owner, reassigns ownership to
// the first remaining member (in insertion order) whose role is publisher or
// moderator.
func (r *Room) RemoveMember(id domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeMemberLocked(id)
}

func (r *Room) removeMemberLocked(id domain.ClientID) {
	if _, ok := r.memberRoles[id]; !ok {
		return
	}
	delete(r.memberRoles, id)
	delete(r.observers, id)
	delete(r.moderators, id)
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.ownerID != id {
		return
	}
	r.ownerID = ""
	for _, cid := range r.order {
		role := r.memberRoles[cid]
		if role == domain.RolePublisher || role == domain.RoleModerator {
			r.ownerID = cid
			break
		}
	}
}

func (r *Room) Members() []domain.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ClientID, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.memberRoles)
}

func (r *Room) HasMember(id domain.ClientID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.memberRoles[id]
	return ok
}

func (r *Room) RoleOf(id domain.ClientID) (domain.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	role, ok := r.memberRoles[id]
	return role, ok
}

func (r *Room) OwnerID() domain.ClientID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ownerID
}

func (r *Room) ObserverCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}

func (r *Room) ModeratorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.moderators)
}

// AddProducer registers p under id. Caller must already have verified the
// owning client and room invariants (spec.md §8 invariant 1).
func (r *Room) AddProducer(id domain.ProducerID, p ProducerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[id] = p
}

// RemoveProducer deletes id from the producer table, reporting whether it
// was present — callers that race with another cleanup path (explicit
// closeClientProducers vs. an engine-emitted producer-closed event) use this
// to broadcast sfu.producerClosed exactly once.
func (r *Room) RemoveProducer(id domain.ProducerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.producers[id]; !ok {
		return false
	}
	delete(r.producers, id)
	return true
}

func (r *Room) Producer(id domain.ProducerID) (ProducerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

// Producers returns a snapshot of the room's producer table.
func (r *Room) Producers() map[domain.ProducerID]ProducerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.ProducerID]ProducerRecord, len(r.producers))
	for id, p := range r.producers {
		out[id] = p
	}
	return out
}

// CountVideoProducers returns the number of active video producers.
func (r *Room) CountVideoProducers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, p := range r.producers {
		if p.Kind == domain.KindVideo {
			n++
		}
	}
	return n
}

// ProducersOwnedBy returns the ids of every producer owned by clientID.
func (r *Room) ProducersOwnedBy(clientID domain.ClientID) []domain.ProducerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ProducerID
	for id, p := range r.producers {
		if p.ClientID == clientID {
			out = append(out, id)
		}
	}
	return out
}
