package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventHistory delivers message history to a client upon joining a room.
	EventHistory EventKind = iota
	// EventRoomMessage notifies clients about a chat message in a room.
	EventRoomMessage
	// EventChatCleared notifies clients that a room's history was deleted.
	EventChatCleared
	// EventUserTyping notifies clients that someone started typing.
	EventUserTyping
	// EventUserStoppedTyping notifies clients that someone stopped typing.
	EventUserStoppedTyping
	// EventError notifies a single client about a failure on its request.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventHistory:
		return "history"
	case EventRoomMessage:
		return "message"
	case EventChatCleared:
		return "chat_cleared"
	case EventUserTyping:
		return "user_typing"
	case EventUserStoppedTyping:
		return "user_stopped_typing"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Room     string
	SenderID string    // typing events
	Message  *Message  // EventRoomMessage
	Messages []Message // EventHistory
	Error    *CoreError
}
