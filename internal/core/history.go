package core

import (
	"context"

	"github.com/vovakirdan/roomchat-server/internal/store"
)

// History adapts a store.MessageStore to domain messages.
type History struct {
	store store.MessageStore
}

// NewHistory wraps s.
func NewHistory(s store.MessageStore) *History {
	return &History{store: s}
}

// FetchRecent returns at most limit messages of room, oldest first.
// The result is never nil.
func (h *History) FetchRecent(ctx context.Context, room string, limit int) ([]Message, error) {
	records, err := h.store.ListRecentMessages(ctx, room, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "fetch", Room: room, Err: err}
	}
	out := make([]Message, 0, len(records))
	for _, rec := range records {
		out = append(out, messageFromRecord(rec))
	}
	return out, nil
}

// Append persists msg and returns it with the store-assigned ID and CreatedAt.
func (h *History) Append(ctx context.Context, msg Message) (*Message, error) {
	stored, err := h.store.InsertMessage(ctx, &store.Message{
		RoomID:       msg.RoomID,
		SenderID:     msg.Sender.ID,
		SenderName:   msg.Sender.Name,
		SenderAvatar: msg.Sender.Avatar,
		Text:         msg.Text,
		Timestamp:    msg.Timestamp,
	})
	if err != nil {
		return nil, &PersistenceError{Op: "append", Room: msg.RoomID, Err: err}
	}
	out := messageFromRecord(stored)
	return &out, nil
}

// Clear deletes every message of room.
func (h *History) Clear(ctx context.Context, room string) error {
	if _, err := h.store.DeleteRoomMessages(ctx, room); err != nil {
		return &PersistenceError{Op: "clear", Room: room, Err: err}
	}
	return nil
}

func messageFromRecord(rec *store.Message) Message {
	return Message{
		ID:     rec.ID,
		RoomID: rec.RoomID,
		Sender: Sender{
			ID:     rec.SenderID,
			Name:   rec.SenderName,
			Avatar: rec.SenderAvatar,
		},
		Text:      rec.Text,
		Timestamp: rec.Timestamp,
		CreatedAt: rec.CreatedAt,
	}
}
