package bus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// collector records payloads received by a handler.
type collector struct {
	mu   sync.Mutex
	got  []string
	seen chan struct{}
}

func newCollector() *collector {
	return &collector{seen: make(chan struct{}, 1024)}
}

func (c *collector) handle(payload []byte) {
	c.mu.Lock()
	c.got = append(c.got, string(payload))
	c.mu.Unlock()
	c.seen <- struct{}{}
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func (c *collector) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-deadline:
			t.Fatalf("timed out after %d of %d payloads", i, n)
		}
	}
	return c.snapshot()
}

func TestMemoryBusFIFO(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	c := newCollector()
	if _, err := b.Subscribe(ctx, "room:general", c.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := b.Publish(ctx, "room:general", []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	got := c.waitFor(t, 20)
	for i, p := range got {
		if p != fmt.Sprintf("%d", i) {
			t.Fatalf("expected payload %d at index %d, got %s", i, i, p)
		}
	}
}

func TestMemoryBusChannelIsolation(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	a, other := newCollector(), newCollector()
	b.Subscribe(ctx, "room:a", a.handle)
	b.Subscribe(ctx, "room:b", other.handle)

	b.Publish(ctx, "room:a", []byte("for-a"))

	if got := a.snapshot(); len(got) != 1 || got[0] != "for-a" {
		t.Fatalf("expected a to receive for-a, got %v", got)
	}
	if got := other.snapshot(); len(got) != 0 {
		t.Fatalf("expected b to receive nothing, got %v", got)
	}
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()
	ctx := context.Background()

	c := newCollector()
	sub, _ := b.Subscribe(ctx, "room:general", c.handle)
	if n := b.SubscriberCount("room:general"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Closing twice is harmless.
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if n := b.SubscriberCount("room:general"); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}

	b.Publish(ctx, "room:general", []byte("late"))
	if got := c.snapshot(); len(got) != 0 {
		t.Fatalf("expected no delivery after close, got %v", got)
	}
}

func TestMemoryBusClosed(t *testing.T) {
	b := NewMemoryBus()
	b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "x", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from publish, got %v", err)
	}
	if _, err := b.Subscribe(ctx, "x", func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from subscribe, got %v", err)
	}
}

func TestNATSSubjectIsSingleToken(t *testing.T) {
	for _, channel := range []string{"room:general", "room:a.b", "room:*", "room:>", "room:with space"} {
		subject := natsSubject(channel)
		rest := strings.TrimPrefix(subject, natsSubjectPrefix)
		if strings.ContainsAny(rest, ".*> ") {
			t.Errorf("subject %q for channel %q is not a single token", subject, channel)
		}
	}
	if natsSubject("room:a") == natsSubject("room:b") {
		t.Fatalf("distinct channels mapped to the same subject")
	}
}

// exerciseBus runs the same publish/subscribe round trip against a networked bus.
func exerciseBus(t *testing.T, b Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := fmt.Sprintf("room:test-%d", time.Now().UnixNano())
	c := newCollector()
	sub, err := b.Subscribe(ctx, channel, c.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, channel, []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	got := c.waitFor(t, 5)
	for i, p := range got {
		if p != fmt.Sprintf("%d", i) {
			t.Fatalf("expected payload %d at index %d, got %s", i, i, p)
		}
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("close subscription: %v", err)
	}
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("ROOMCHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMCHAT_TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	logger := zerolog.Nop()
	b, err := NewRedisBus(ctx, RedisConfig{Addr: addr}, &logger)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer b.Close()

	exerciseBus(t, b)
}

func TestNATSBus(t *testing.T) {
	url := os.Getenv("ROOMCHAT_TEST_NATS_URL")
	if url == "" {
		t.Skip("ROOMCHAT_TEST_NATS_URL not set, skipping nats integration test")
	}
	b, err := NewNATSBus(url)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	defer b.Close()
	// Connect retries in the background, so probe the server explicitly.
	if err := b.conn.FlushTimeout(time.Second); err != nil {
		t.Skipf("nats not reachable: %v", err)
	}

	exerciseBus(t, b)
}
