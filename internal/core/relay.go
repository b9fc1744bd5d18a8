package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 50
	defaultSendBuffer   = 64
)

// Options tunes the relay.
type Options struct {
	// HistoryLimit caps how many messages are sent on join.
	HistoryLimit int
	// AvatarURL is a fmt template receiving the user id. Empty leaves avatars blank.
	AvatarURL string
	// SendBuffer is the per-session outbound queue size.
	SendBuffer int
	// Now stamps outgoing messages; defaults to time.Now.
	Now func() time.Time
}

// Relay routes client commands between sessions, the history store and the bus.
type Relay struct {
	registry    *Registry
	history     *History
	broadcaster *Broadcaster
	subs        *subscriptions
	opts        Options
	logger      *zerolog.Logger
}

// NewRelay wires the relay's collaborators.
func NewRelay(registry *Registry, history *History, broadcaster *Broadcaster, opts Options, logger *zerolog.Logger) *Relay {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		registry:    registry,
		history:     history,
		broadcaster: broadcaster,
		subs:        newSubscriptions(broadcaster, registry, logger),
		opts:        opts,
		logger:      logger,
	}
}

// Registry exposes the relay's room registry.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Connect creates the session for an authenticated identity.
func (r *Relay) Connect(identity Identity) (*Session, error) {
	if identity.UserID == "" {
		return nil, ErrNotAuthenticated
	}
	s := newSession(identity, r.opts.SendBuffer)
	s.setState(StateAuthenticated)
	r.sessionLogger(s).Info().Msg("session connected")
	return s, nil
}

// OnClientEvent processes one command for s. Callers must not call it
// concurrently for the same session. Failures that only concern the sender
// are reported to it as error events; the returned error is non-nil only when
// the session can no longer be served.
func (r *Relay) OnClientEvent(ctx context.Context, s *Session, cmd *Command) error {
	switch s.State() {
	case StateClosed:
		return ErrSessionClosed
	case StateConnecting:
		return ErrNotAuthenticated
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		return r.join(ctx, s, cmd.Room)
	case CommandSendRoomMessage:
		return r.chat(ctx, s, cmd.Text)
	case CommandClearRoom:
		return r.clear(ctx, s, cmd.Room)
	case CommandStartTyping:
		return r.typing(ctx, s, cmd.Room, EventUserTyping)
	case CommandStopTyping:
		return r.typing(ctx, s, cmd.Room, EventUserStoppedTyping)
	default:
		r.sessionLogger(s).Debug().Int("kind", int(cmd.Kind)).Msg("ignore unknown command")
		return nil
	}
}

func (r *Relay) join(ctx context.Context, s *Session, room string) error {
	if room == "" {
		return s.Reply(ctx, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "room id is required")})
	}

	prev, err := r.registry.Join(s, room)
	if err != nil {
		return err
	}

	if prev != room || !r.holdsSubscription(s) {
		if old := s.takeSubscription(); old != nil {
			old.Close()
		}
		sub, subErr := r.subs.acquire(ctx, room)
		if !s.setSubscription(sub) {
			sub.Close()
			return ErrSessionClosed
		}
		if subErr != nil {
			r.sessionLogger(s).Warn().Err(subErr).Str("room_id", room).Msg("bus subscribe failed")
			if err := s.Reply(ctx, &Event{Kind: EventError, Room: room, Error: coreError(ErrCodeBusError, "live updates unavailable for this room")}); err != nil {
				return err
			}
		}
	}

	messages, err := r.history.FetchRecent(ctx, room, r.opts.HistoryLimit)
	if err != nil {
		r.sessionLogger(s).Warn().Err(err).Str("room_id", room).Msg("fetch history failed")
		return s.Reply(ctx, &Event{Kind: EventError, Room: room, Error: coreError(ErrCodePersistenceError, "could not load history")})
	}

	r.sessionLogger(s).Debug().Str("room_id", room).Int("history", len(messages)).Msg("joined room")
	return s.Reply(ctx, &Event{Kind: EventHistory, Room: room, Messages: messages})
}

func (r *Relay) holdsSubscription(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub != nil
}

func (r *Relay) chat(ctx context.Context, s *Session, text string) error {
	room, ok := r.joinedRoom(s, "")
	if !ok {
		r.sessionLogger(s).Debug().Msg("drop chat outside a room")
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	msg := Message{
		RoomID: room,
		Sender: Sender{
			ID:     s.Identity.UserID,
			Name:   s.Identity.DisplayName,
			Avatar: r.avatar(s.Identity.UserID),
		},
		Text:      text,
		Timestamp: r.opts.Now().UTC().Format(time.RFC3339),
	}

	stored, err := r.history.Append(ctx, msg)
	if err != nil {
		r.sessionLogger(s).Warn().Err(err).Str("room_id", room).Msg("append message failed")
		return s.Reply(ctx, &Event{Kind: EventError, Room: room, Error: coreError(ErrCodePersistenceError, "message was not saved")})
	}

	return r.publish(ctx, s, &Event{Kind: EventRoomMessage, Room: room, Message: stored})
}

func (r *Relay) clear(ctx context.Context, s *Session, requested string) error {
	room, ok := r.joinedRoom(s, requested)
	if !ok {
		r.sessionLogger(s).Debug().Str("room_id", requested).Msg("drop clear for a room not joined")
		return nil
	}

	if err := r.history.Clear(ctx, room); err != nil {
		r.sessionLogger(s).Warn().Err(err).Str("room_id", room).Msg("clear history failed")
		return s.Reply(ctx, &Event{Kind: EventError, Room: room, Error: coreError(ErrCodePersistenceError, "history was not cleared")})
	}

	r.sessionLogger(s).Info().Str("room_id", room).Msg("room history cleared")
	return r.publish(ctx, s, &Event{Kind: EventChatCleared, Room: room})
}

func (r *Relay) typing(ctx context.Context, s *Session, requested string, kind EventKind) error {
	room, ok := r.joinedRoom(s, requested)
	if !ok {
		return nil
	}
	return r.publish(ctx, s, &Event{Kind: kind, Room: room, SenderID: s.Identity.UserID})
}

// joinedRoom resolves the room a command targets. An empty requested room
// means the current one; any other room must match it.
func (r *Relay) joinedRoom(s *Session, requested string) (string, bool) {
	if s.State() != StateJoined {
		return "", false
	}
	room := s.Room()
	if requested != "" && requested != room {
		return "", false
	}
	return room, true
}

func (r *Relay) publish(ctx context.Context, s *Session, ev *Event) error {
	err := r.broadcaster.Publish(ctx, ev)
	if err == nil {
		return nil
	}
	var busErr *BusError
	if !errors.As(err, &busErr) {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	r.sessionLogger(s).Warn().Err(err).Str("room_id", ev.Room).Msg("publish failed")
	return s.Reply(ctx, &Event{Kind: EventError, Room: ev.Room, Error: coreError(ErrCodeBusError, "event was not delivered")})
}

func (r *Relay) avatar(userID string) string {
	if r.opts.AvatarURL == "" {
		return ""
	}
	return fmt.Sprintf(r.opts.AvatarURL, userID)
}

// Disconnect tears the session down: it leaves its room and releases its bus
// subscription. Calling it more than once is harmless.
func (r *Relay) Disconnect(s *Session) {
	if !s.markClosed() {
		return
	}
	room := r.registry.Leave(s)
	if sub := s.takeSubscription(); sub != nil {
		sub.Close()
	}
	r.sessionLogger(s).Info().Str("room_id", room).Msg("session disconnected")
}

func (r *Relay) sessionLogger(s *Session) *zerolog.Logger {
	l := r.logger.With().Str("session_id", s.ID).Str("user_id", s.Identity.UserID).Logger()
	return &l
}
