package bus

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsSubjectPrefix = "roomchat."
	natsFlushTimeout  = 2 * time.Second
)

// NATSBus fans payloads out through core NATS subjects.
type NATSBus struct {
	conn *nats.Conn
}

type natsSub struct {
	sub *nats.Subscription
}

// NewNATSBus connects to the NATS server at url.
func NewNATSBus(url string) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: nc}, nil
}

// natsSubject maps an arbitrary channel name onto a single NATS subject token.
// Room ids may contain '.', '*' or '>' which NATS treats specially.
func natsSubject(channel string) string {
	return natsSubjectPrefix + base64.RawURLEncoding.EncodeToString([]byte(channel))
}

// Publish sends payload to the channel's subject.
func (b *NATSBus) Publish(_ context.Context, channel string, payload []byte) error {
	if err := b.conn.Publish(natsSubject(channel), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers handler on channel. The subscription is flushed to the
// server before returning.
func (b *NATSBus) Subscribe(_ context.Context, channel string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(natsSubject(channel), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", channel, err)
	}
	if err := b.conn.FlushTimeout(natsFlushTimeout); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush %s: %w", channel, err)
	}
	return &natsSub{sub: sub}, nil
}

func (s *natsSub) Close() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Close drains the connection.
func (b *NATSBus) Close() error {
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
