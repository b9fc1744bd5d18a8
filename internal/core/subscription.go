package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/roomchat-server/internal/bus"
)

// subscriptions keeps one bus subscription per room for the whole process,
// shared by every local session joined to that room.
type subscriptions struct {
	broadcaster *Broadcaster
	registry    *Registry
	logger      *zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*roomChannel
}

// roomChannel is the per-room subscription. refs is guarded by subscriptions.mu,
// sub by roomChannel.mu.
type roomChannel struct {
	room string
	refs int

	mu  sync.Mutex
	sub bus.Subscription
}

// RoomSubscription is a session's share of a room's bus subscription.
type RoomSubscription struct {
	RoomID string

	m    *subscriptions
	rc   *roomChannel
	once sync.Once
}

func newSubscriptions(b *Broadcaster, registry *Registry, logger *zerolog.Logger) *subscriptions {
	return &subscriptions{
		broadcaster: b,
		registry:    registry,
		logger:      logger,
		rooms:       make(map[string]*roomChannel),
	}
}

// acquire takes a reference on room's subscription, subscribing on first use.
// The returned handle must be closed even when err is non-nil.
func (m *subscriptions) acquire(ctx context.Context, room string) (*RoomSubscription, error) {
	m.mu.Lock()
	rc, ok := m.rooms[room]
	if !ok {
		rc = &roomChannel{room: room}
		m.rooms[room] = rc
	}
	rc.refs++
	m.mu.Unlock()

	handle := &RoomSubscription{RoomID: room, m: m, rc: rc}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.sub != nil {
		return handle, nil
	}
	sub, err := m.broadcaster.Subscribe(ctx, room, m.handler(rc), func(err error) {
		m.logger.Warn().Err(err).Str("room_id", room).Msg("drop undecodable bus payload")
	})
	if err != nil {
		// Left nil so the next joiner retries.
		return handle, err
	}
	rc.sub = sub
	m.logger.Debug().Str("room_id", room).Str("channel", m.broadcaster.Channel(room)).Msg("bus subscribed")
	return handle, nil
}

func (m *subscriptions) handler(rc *roomChannel) func(*Event) {
	return func(ev *Event) {
		// A subscription being torn down can still fire once; its successor delivers instead.
		if !m.current(rc) {
			return
		}
		m.registry.BroadcastLocal(rc.room, ev)
	}
}

func (m *subscriptions) current(rc *roomChannel) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[rc.room] == rc
}

func (m *subscriptions) release(rc *roomChannel) {
	m.mu.Lock()
	rc.refs--
	last := rc.refs == 0
	if last && m.rooms[rc.room] == rc {
		delete(m.rooms, rc.room)
	}
	m.mu.Unlock()

	if !last {
		return
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.sub == nil {
		return
	}
	if err := rc.sub.Close(); err != nil {
		m.logger.Warn().Err(err).Str("room_id", rc.room).Msg("close bus subscription")
	}
	rc.sub = nil
	m.logger.Debug().Str("room_id", rc.room).Msg("bus unsubscribed")
}

// active reports whether the process currently holds a subscription for room.
func (m *subscriptions) active(room string) bool {
	m.mu.Lock()
	rc, ok := m.rooms[room]
	m.mu.Unlock()
	if !ok {
		return false
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sub != nil
}

// refs returns how many sessions hold room's subscription.
func (m *subscriptions) refs(room string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.rooms[room]; ok {
		return rc.refs
	}
	return 0
}

// Close releases the session's reference. Safe to call more than once.
func (s *RoomSubscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.m.release(s.rc)
	})
}
