package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process bus. Publish invokes every handler of the
// channel before returning, so delivery is FIFO per publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	bus     *MemoryBus
	channel string
	handler Handler

	mu     sync.Mutex
	closed bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish delivers payload to every current subscriber of channel.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*memorySub, 0, len(b.subs[channel]))
	for sub := range b.subs[channel] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.deliver(payload)
	}
	return nil
}

// Subscribe registers handler on channel.
func (b *MemoryBus) Subscribe(_ context.Context, channel string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{bus: b, channel: channel, handler: handler}
	set, ok := b.subs[channel]
	if !ok {
		set = make(map[*memorySub]struct{})
		b.subs[channel] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// SubscriberCount reports how many live subscriptions exist for channel.
func (b *MemoryBus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close drops every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[*memorySub]struct{})
	return nil
}

// deliver serializes calls per subscription and drops payloads after Close.
func (s *memorySub) deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handler(payload)
}

func (s *memorySub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if set, ok := s.bus.subs[s.channel]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(s.bus.subs, s.channel)
		}
	}
	return nil
}
