// Package bus provides the pub/sub fan-out used to relay room events
// between every relay process sharing a deployment.
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a bus that has been closed.
var ErrClosed = errors.New("bus closed")

// Handler is invoked once per payload published on a subscribed channel.
// Handlers for one subscription are called sequentially in publish order.
type Handler func(payload []byte)

// Subscription is a live registration returned by Subscribe.
type Subscription interface {
	// Close stops delivery to the handler. It is safe to call more than once.
	Close() error
}

// Bus publishes opaque payloads to named channels.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
	Close() error
}
