package core

import (
	"errors"
	"fmt"
)

// Error codes sent to clients in error frames.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodePersistenceError = "persistence_error"
	ErrCodeBusError         = "bus_error"
	ErrCodeRateLimited      = "rate_limited"
)

var (
	// ErrSessionClosed is returned when work is attempted on a disconnected session.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotAuthenticated is returned when an anonymous identity reaches the relay.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// PersistenceError reports a failed history store operation.
type PersistenceError struct {
	Op   string
	Room string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s in room %q: %v", e.Op, e.Room, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// BusError reports a failed broadcast bus operation.
type BusError struct {
	Op      string
	Channel string
	Err     error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s on %q: %v", e.Op, e.Channel, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }
