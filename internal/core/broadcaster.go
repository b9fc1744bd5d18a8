package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/roomchat-server/internal/bus"
)

// envelope is the bus wire format for room events.
type envelope struct {
	Kind     string   `json:"kind"`
	Room     string   `json:"room"`
	SenderID string   `json:"senderId,omitempty"`
	Message  *Message `json:"message,omitempty"`
}

var busKinds = map[string]EventKind{
	EventRoomMessage.String():       EventRoomMessage,
	EventChatCleared.String():       EventChatCleared,
	EventUserTyping.String():        EventUserTyping,
	EventUserStoppedTyping.String(): EventUserStoppedTyping,
}

// Broadcaster publishes room events on a bus and decodes them on the way back.
type Broadcaster struct {
	bus    bus.Bus
	prefix string
}

// NewBroadcaster returns a broadcaster that namespaces channels with prefix.
func NewBroadcaster(b bus.Bus, prefix string) *Broadcaster {
	return &Broadcaster{bus: b, prefix: prefix}
}

// Channel returns the bus channel carrying room's events.
func (b *Broadcaster) Channel(room string) string {
	return b.prefix + "room:" + room
}

// Publish sends ev to every process subscribed to ev.Room.
func (b *Broadcaster) Publish(ctx context.Context, ev *Event) error {
	if _, ok := busKinds[ev.Kind.String()]; !ok {
		return fmt.Errorf("event kind %s is not broadcast", ev.Kind)
	}
	channel := b.Channel(ev.Room)
	payload, err := json.Marshal(envelope{
		Kind:     ev.Kind.String(),
		Room:     ev.Room,
		SenderID: ev.SenderID,
		Message:  ev.Message,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Kind, err)
	}
	if err := b.bus.Publish(ctx, channel, payload); err != nil {
		return &BusError{Op: "publish", Channel: channel, Err: err}
	}
	return nil
}

// Subscribe invokes onEvent for every event published to room.
// Payloads that do not decode are passed to onInvalid when it is non-nil.
func (b *Broadcaster) Subscribe(ctx context.Context, room string, onEvent func(*Event), onInvalid func(error)) (bus.Subscription, error) {
	channel := b.Channel(room)
	sub, err := b.bus.Subscribe(ctx, channel, func(payload []byte) {
		ev, err := decodeEnvelope(payload)
		if err != nil {
			if onInvalid != nil {
				onInvalid(err)
			}
			return
		}
		onEvent(ev)
	})
	if err != nil {
		return nil, &BusError{Op: "subscribe", Channel: channel, Err: err}
	}
	return sub, nil
}

func decodeEnvelope(payload []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	kind, ok := busKinds[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %q", env.Kind)
	}
	if kind == EventRoomMessage && env.Message == nil {
		return nil, fmt.Errorf("message event without message")
	}
	return &Event{
		Kind:     kind,
		Room:     env.Room,
		SenderID: env.SenderID,
		Message:  env.Message,
	}, nil
}
