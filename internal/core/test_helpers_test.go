package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomchat-server/internal/bus"
	"github.com/vovakirdan/roomchat-server/internal/store"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory store.MessageStore with failure injection.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []*store.Message

	failInsert bool
	failList   bool
	failDelete bool
	listCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) InsertMessage(_ context.Context, msg *store.Message) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return nil, errInjected
	}
	f.nextID++
	stored := *msg
	stored.ID = strconv.FormatInt(f.nextID, 10)
	stored.CreatedAt = time.Now().UTC()
	f.messages = append(f.messages, &stored)
	return &stored, nil
}

func (f *fakeStore) ListRecentMessages(_ context.Context, roomID string, limit int) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failList {
		return nil, errInjected
	}
	var out []*store.Message
	for _, m := range f.messages {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) DeleteRoomMessages(_ context.Context, roomID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return 0, errInjected
	}
	kept := f.messages[:0]
	var n int64
	for _, m := range f.messages {
		if m.RoomID == roomID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept
	return n, nil
}

func (f *fakeStore) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (f *fakeStore) set(fn func(f *fakeStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeStore) historyFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// flakyBus wraps a MemoryBus and can be told to fail.
type flakyBus struct {
	*bus.MemoryBus

	mu            sync.Mutex
	failPublish   bool
	failSubscribe bool
	onPublish     func(channel string, payload []byte)
}

func (b *flakyBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	fail, hook := b.failPublish, b.onPublish
	b.mu.Unlock()
	if fail {
		return errInjected
	}
	if hook != nil {
		hook(channel, payload)
	}
	return b.MemoryBus.Publish(ctx, channel, payload)
}

func (b *flakyBus) Subscribe(ctx context.Context, channel string, h bus.Handler) (bus.Subscription, error) {
	b.mu.Lock()
	fail := b.failSubscribe
	b.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return b.MemoryBus.Subscribe(ctx, channel, h)
}

type relayFixture struct {
	relay *Relay
	store *fakeStore
	bus   *flakyBus
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	fs := newFakeStore()
	fb := &flakyBus{MemoryBus: bus.NewMemoryBus()}
	t.Cleanup(func() { fb.Close() })

	logger := zerolog.Nop()
	relay := NewRelay(NewRegistry(), NewHistory(fs), NewBroadcaster(fb, "test:"), Options{
		HistoryLimit: 50,
		AvatarURL:    "https://i.pravatar.cc/40?u=%s",
		SendBuffer:   32,
		Now:          func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) },
	}, &logger)
	return &relayFixture{relay: relay, store: fs, bus: fb}
}

func (f *relayFixture) connect(t *testing.T, userID, name string) *Session {
	t.Helper()
	s, err := f.relay.Connect(Identity{UserID: userID, DisplayName: name})
	if err != nil {
		t.Fatalf("connect %s: %v", userID, err)
	}
	t.Cleanup(func() { f.relay.Disconnect(s) })
	return s
}

func (f *relayFixture) send(t *testing.T, s *Session, cmd *Command) {
	t.Helper()
	if err := f.relay.OnClientEvent(context.Background(), s, cmd); err != nil {
		t.Fatalf("OnClientEvent(%s): %v", cmd.Kind, err)
	}
}

func (f *relayFixture) join(t *testing.T, s *Session, room string) *Event {
	t.Helper()
	f.send(t, s, &Command{Kind: CommandJoinRoom, Room: room})
	return mustEvent(t, s.Events, EventHistory)
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// expectNoEvent fails if anything is queued on ch within a short window.
func expectNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v: %+v", ev.Kind, ev)
	case <-time.After(50 * time.Millisecond):
	}
}
