package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotJoined is returned for commands sent before join.
	ErrNotJoined = errors.New("connection has not joined")
	// ErrAlreadyJoined is returned when a joined connection joins again.
	ErrAlreadyJoined = errors.New("connection already joined")
	// ErrUnknownConnection is returned for commands from unregistered connections.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrRecipientOffline is returned when a private message target has no connections.
	ErrRecipientOffline = errors.New("recipient offline")
	// ErrSelfPrivateMessage is returned when a private message targets its sender.
	ErrSelfPrivateMessage = errors.New("private message to self")
	// ErrEmptyMessage is returned for blank message bodies.
	ErrEmptyMessage = errors.New("empty message")
	// ErrEmptyIdentity is returned when a command names no identity.
	ErrEmptyIdentity = errors.New("empty identity")
	// ErrHubStopped is returned when the event loop is no longer running.
	ErrHubStopped = errors.New("hub stopped")
)

// PersistenceError wraps a storage failure that aborted an event.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// isProtocolViolation reports errors that are discarded silently.
func isProtocolViolation(err error) bool {
	return errors.Is(err, ErrNotJoined) ||
		errors.Is(err, ErrAlreadyJoined) ||
		errors.Is(err, ErrUnknownConnection) ||
		errors.Is(err, ErrRecipientOffline) ||
		errors.Is(err, ErrSelfPrivateMessage) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrEmptyIdentity)
}
