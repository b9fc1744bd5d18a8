package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom moves the session into a room and requests its history.
	CommandJoinRoom CommandKind = iota
	// CommandSendRoomMessage persists a chat message and relays it to the room.
	CommandSendRoomMessage
	// CommandClearRoom deletes the room history and notifies its members.
	CommandClearRoom
	// CommandStartTyping relays a typing indicator.
	CommandStartTyping
	// CommandStopTyping relays the end of a typing indicator.
	CommandStopTyping
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "join"
	case CommandSendRoomMessage:
		return "chat"
	case CommandClearRoom:
		return "clear"
	case CommandStartTyping:
		return "typing"
	case CommandStopTyping:
		return "stop_typing"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
// Room is empty when the client did not name one.
type Command struct {
	Kind CommandKind
	Room string
	Text string
}
