package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds connection settings for RedisBus.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBus fans payloads out through Redis PUBLISH/SUBSCRIBE so that every
// relay process connected to the same Redis sees every room event.
type RedisBus struct {
	client *redis.Client
	logger *zerolog.Logger

	mu   sync.Mutex
	subs map[*redisSub]struct{}
}

type redisSub struct {
	bus  *RedisBus
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, cfg RedisConfig, logger *zerolog.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBus{
		client: client,
		logger: logger,
		subs:   make(map[*redisSub]struct{}),
	}, nil
}

// Publish sends payload to channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers handler on channel. It returns once Redis has
// confirmed the subscription, so payloads published afterwards are seen.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}

	sub := &redisSub{bus: b, ps: ps, done: make(chan struct{})}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.run(handler)
	return sub, nil
}

func (s *redisSub) run(handler Handler) {
	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			handler([]byte(msg.Payload))
		}
	}
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		err = s.ps.Close()
	})
	return err
}

// Close closes all subscriptions and the Redis client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := make([]*redisSub, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("close redis subscription")
		}
	}
	return b.client.Close()
}
