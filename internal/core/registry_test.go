package core

import (
	"errors"
	"testing"
)

func TestRegistryJoinMovesSession(t *testing.T) {
	reg := NewRegistry()
	s := newSession(Identity{UserID: "1"}, 4)
	s.setState(StateAuthenticated)

	prev, err := reg.Join(s, "a")
	if err != nil || prev != "" {
		t.Fatalf("first join: prev=%q err=%v", prev, err)
	}
	prev, err = reg.Join(s, "b")
	if err != nil || prev != "a" {
		t.Fatalf("second join: prev=%q err=%v", prev, err)
	}

	if reg.MemberCount("a") != 0 || reg.MemberCount("b") != 1 {
		t.Fatalf("unexpected membership a=%d b=%d", reg.MemberCount("a"), reg.MemberCount("b"))
	}
	if reg.RoomCount() != 1 {
		t.Fatalf("empty room a should be dropped, have %d rooms", reg.RoomCount())
	}
	if s.State() != StateJoined {
		t.Fatalf("expected joined, got %s", s.State())
	}
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	s := newSession(Identity{UserID: "1"}, 4)

	reg.Join(s, "a")
	reg.Join(s, "a")

	if n := len(reg.LocalMembers("a")); n != 1 {
		t.Fatalf("expected one member, got %d", n)
	}
}

func TestRegistryRefusesClosedSession(t *testing.T) {
	reg := NewRegistry()
	s := newSession(Identity{UserID: "1"}, 4)
	s.markClosed()

	if _, err := reg.Join(s, "a"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if reg.RoomCount() != 0 {
		t.Fatalf("closed session must not be registered")
	}
}

func TestRegistryLeave(t *testing.T) {
	reg := NewRegistry()
	s := newSession(Identity{UserID: "1"}, 4)

	if room := reg.Leave(s); room != "" {
		t.Fatalf("leave before join returned %q", room)
	}
	reg.Join(s, "a")
	if room := reg.Leave(s); room != "a" {
		t.Fatalf("expected to leave a, got %q", room)
	}
	if room := reg.Leave(s); room != "" {
		t.Fatalf("second leave returned %q", room)
	}
	if reg.RoomCount() != 0 {
		t.Fatalf("expected no rooms")
	}
}

func TestRegistryBroadcastLocalSkipsClosedAndFull(t *testing.T) {
	reg := NewRegistry()
	live := newSession(Identity{UserID: "1"}, 4)
	full := newSession(Identity{UserID: "2"}, 1)
	closed := newSession(Identity{UserID: "3"}, 4)

	for _, s := range []*Session{live, full, closed} {
		if _, err := reg.Join(s, "a"); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	full.Events <- &Event{Kind: EventUserTyping}
	closed.markClosed()

	n := reg.BroadcastLocal("a", &Event{Kind: EventChatCleared, Room: "a"})
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	mustEvent(t, live.Events, EventChatCleared)
	if len(closed.Events) != 0 {
		t.Fatalf("closed session received an event")
	}
}
