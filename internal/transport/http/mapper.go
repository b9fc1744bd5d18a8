package http

import (
	"encoding/json"

	"github.com/vovakirdan/roomchat-server/internal/core"
	"github.com/vovakirdan/roomchat-server/internal/proto"
)

// inboundToCommand decodes a client frame. A nil command with nil errors means
// the frame is ignored; a *proto.Error is reported to the client; an error
// means the payload was malformed.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.RoomData
		if err := decodePayload(inbound.Payload, &join); err != nil {
			return nil, nil, err
		}
		if join.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "roomId is required"}, nil
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: join.RoomID}, nil, nil
	case proto.InboundTypeChat:
		var chat proto.ChatData
		if err := decodePayload(inbound.Payload, &chat); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandSendRoomMessage, Text: chat.Message}, nil, nil
	case proto.InboundTypeClearChat:
		return roomCommand(core.CommandClearRoom, inbound.Payload)
	case proto.InboundTypeStartTyping:
		return roomCommand(core.CommandStartTyping, inbound.Payload)
	case proto.InboundTypeStopTyping:
		return roomCommand(core.CommandStopTyping, inbound.Payload)
	default:
		return nil, nil, nil
	}
}

func roomCommand(kind core.CommandKind, payload json.RawMessage) (*core.Command, *proto.Error, error) {
	var data proto.RoomData
	if err := decodePayload(payload, &data); err != nil {
		return nil, nil, err
	}
	return &core.Command{Kind: kind, Room: data.RoomID}, nil, nil
}

// decodePayload treats a missing or null payload as an empty object.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventHistory:
		messages := make([]proto.Message, 0, len(event.Messages))
		for i := range event.Messages {
			messages = append(messages, messageToProto(&event.Messages[i]))
		}
		return proto.Outbound{Type: proto.OutboundTypeHistory, Payload: messages}
	case core.EventRoomMessage:
		if event.Message == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "empty message"}}
		}
		return proto.Outbound{Type: proto.OutboundTypeMessage, Payload: messageToProto(event.Message)}
	case core.EventChatCleared:
		return proto.Outbound{Type: proto.OutboundTypeChatCleared}
	case core.EventUserTyping:
		return proto.Outbound{Type: proto.OutboundTypeUserTyping, SenderID: event.SenderID}
	case core.EventUserStoppedTyping:
		return proto.Outbound{Type: proto.OutboundTypeUserStoppedTyping, SenderID: event.SenderID}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unsupported event"}}
	}
}

func messageToProto(msg *core.Message) proto.Message {
	return proto.Message{
		ID:     msg.ID,
		RoomID: msg.RoomID,
		Sender: proto.Sender{
			ID:     msg.Sender.ID,
			Name:   msg.Sender.Name,
			Avatar: msg.Sender.Avatar,
		},
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		CreatedAt: msg.CreatedAt,
	}
}
