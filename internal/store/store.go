package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("already exists")
)

// User represents a registered user.
// ID is always the store's identifier rendered as a plain string.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message represents a persisted chat message.
// ID is assigned by the store on insert and rendered as a plain string;
// CreatedAt is the store-assigned ordering key.
type Message struct {
	ID           string
	RoomID       string
	SenderID     string
	SenderName   string
	SenderAvatar string
	Text         string
	Timestamp    string
	CreatedAt    time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	// Returns ErrDuplicate if the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a message and returns it with ID and CreatedAt set.
	// It returns only after the write is committed.
	InsertMessage(ctx context.Context, msg *Message) (*Message, error)

	// ListRecentMessages returns at most limit messages of a room, oldest first.
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)

	// DeleteRoomMessages removes every message of a room and returns how many were removed.
	DeleteRoomMessages(ctx context.Context, roomID string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
