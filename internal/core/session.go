package core

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// SessionState tracks where a connection is in its lifecycle.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection state owned by the relay.
// Events is drained by the transport writer and is never closed;
// Done reports when the session is gone.
type Session struct {
	ID       string
	Identity Identity
	Events   chan *Event

	mu    sync.Mutex
	state SessionState
	room  string
	sub   *RoomSubscription

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(identity Identity, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		Events:   make(chan *Event, buffer),
		state:    StateConnecting,
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the room the session last joined, or "" before any join.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Done is closed once the session has been disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Alive reports whether the session has not been disconnected yet.
func (s *Session) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// deliver queues ev without blocking. Closed sessions and full queues drop the event.
func (s *Session) deliver(ev *Event) bool {
	if !s.Alive() {
		return false
	}
	select {
	case s.Events <- ev:
		return true
	default:
		return false
	}
}

// Reply queues an event addressed only to this session, waiting for room in the queue.
func (s *Session) Reply(ctx context.Context, ev *Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.Events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = state
}

// setRoom records the joined room. It never revives a closed session.
func (s *Session) setRoom(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.room = room
	s.state = StateJoined
	return true
}

// setSubscription stores sub as the session's bus handle. It refuses when the
// session is already closed, leaving the caller responsible for releasing sub.
func (s *Session) setSubscription(sub *RoomSubscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.sub = sub
	return true
}

// takeSubscription detaches and returns the current bus handle, if any.
func (s *Session) takeSubscription() *RoomSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := s.sub
	s.sub = nil
	return sub
}

// markClosed moves the session to Closed. It returns false if it already was.
func (s *Session) markClosed() bool {
	first := false
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
		first = true
	})
	return first
}
