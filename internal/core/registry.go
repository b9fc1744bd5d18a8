package core

import "sync"

// Registry tracks which local sessions are joined to which room.
// A session is in at most one room at a time.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Join moves s into room, leaving its previous room first. Joining the room
// the session is already in is a no-op. It returns the previous room.
func (r *Registry) Join(s *Session, room string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := s.Room()
	// Checked under the registry lock so a concurrent Leave cannot be overtaken.
	if s.State() == StateClosed {
		return prev, ErrSessionClosed
	}

	if prev != "" && prev != room {
		r.removeLocked(s, prev)
	}

	rm, ok := r.rooms[room]
	if !ok {
		rm = NewRoom(room)
		r.rooms[room] = rm
	}
	rm.Add(s)

	if !s.setRoom(room) {
		r.removeLocked(s, room)
		return prev, ErrSessionClosed
	}
	return prev, nil
}

// Leave removes s from whichever room it is in and returns that room.
func (r *Registry) Leave(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := s.Room()
	if room == "" {
		return ""
	}
	if !r.removeLocked(s, room) {
		return ""
	}
	return room
}

func (r *Registry) removeLocked(s *Session, room string) bool {
	rm, ok := r.rooms[room]
	if !ok {
		return false
	}
	removed := rm.Remove(s)
	if rm.Empty() {
		delete(r.rooms, room)
	}
	return removed
}

// LocalMembers returns a snapshot of the sessions joined to room.
func (r *Registry) LocalMembers(room string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[room]
	if !ok {
		return nil
	}
	return rm.Members()
}

// BroadcastLocal queues ev to every live member of room and returns how many
// accepted it. Delivery happens outside the registry lock.
func (r *Registry) BroadcastLocal(room string, ev *Event) int {
	delivered := 0
	for _, s := range r.LocalMembers(room) {
		if s.deliver(ev) {
			delivered++
		}
	}
	return delivered
}

// RoomCount returns the number of rooms with at least one local member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// MemberCount returns how many local sessions are joined to room.
func (r *Registry) MemberCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[room]; ok {
		return rm.Len()
	}
	return 0
}

// Contains reports whether s is in room's member set.
func (r *Registry) Contains(room string, s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[room]
	return ok && rm.Has(s)
}
