package core

// Room groups the local sessions joined to the same room id.
type Room struct {
	Name     string
	sessions map[*Session]struct{}
}

// NewRoom constructs a room with no sessions.
func NewRoom(name string) *Room {
	return &Room{
		Name:     name,
		sessions: make(map[*Session]struct{}),
	}
}

// Add inserts a session into the room. Returns true if newly added.
func (r *Room) Add(s *Session) bool {
	if _, exists := r.sessions[s]; exists {
		return false
	}
	r.sessions[s] = struct{}{}
	return true
}

// Remove deletes a session from the room. Returns true if removed.
func (r *Room) Remove(s *Session) bool {
	if _, exists := r.sessions[s]; !exists {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Has reports whether s is a member.
func (r *Room) Has(s *Session) bool {
	_, ok := r.sessions[s]
	return ok
}

// Members returns a snapshot of the room's sessions.
func (r *Room) Members() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of sessions in the room.
func (r *Room) Len() int {
	return len(r.sessions)
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.sessions) == 0
}
