package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	InboundTypeJoin        = "join"
	InboundTypeChat        = "chat"
	InboundTypeClearChat   = "clear_chat"
	InboundTypeStartTyping = "start_typing"
	InboundTypeStopTyping  = "stop_typing"

	OutboundTypeHistory           = "history"
	OutboundTypeMessage           = "message"
	OutboundTypeChatCleared       = "chat_cleared"
	OutboundTypeUserTyping        = "user_typing"
	OutboundTypeUserStoppedTyping = "user_stopped_typing"
	OutboundTypeError             = "error"
)

// RoomData names the room a join, clear or typing request refers to.
type RoomData struct {
	RoomID string `json:"roomId"`
}

// ChatData is a chat message from the client. It always targets the joined room.
type ChatData struct {
	Message string `json:"message"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type     string `json:"type"`
	Payload  any    `json:"payload,omitempty"`
	SenderID string `json:"senderId,omitempty"`
	Error    *Error `json:"error,omitempty"`
}

// Sender is the author block embedded in every message.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Message is the wire form of a chat message. ID is always a plain string.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
