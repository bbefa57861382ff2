package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is a chat identity resolved from a display name and an optional tripcode.
type User struct {
	ID           int64
	Username     string
	Tripcode     string // empty when the user joined without a secret
	DisplayName  string // "username!tripcode" or plain username
	MessageCount int64
	CreatedAt    time.Time
	LastSeen     time.Time
}

// Message represents a persisted chat message.
// Recipient is nil for messages posted to the shared room and set for
// directed private messages.
type Message struct {
	ID        int64
	Author    string
	Body      string
	UserID    *int64
	Recipient *string
	CreatedAt time.Time
}

// Private reports whether the message was addressed to a single identity.
func (m *Message) Private() bool {
	return m.Recipient != nil
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateOrGetUser returns the user keyed by (username, tripcode),
	// creating it when absent. The last_seen timestamp is refreshed either way.
	CreateOrGetUser(ctx context.Context, username, tripcode, displayName string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage appends a message. ID is assigned by the store; CreatedAt
	// is set to the current time when zero.
	SaveMessage(ctx context.Context, msg *Message) error

	// RecentMessages returns at most limit public messages ordered oldest first.
	RecentMessages(ctx context.Context, limit int) ([]*Message, error)
}

// ReceiptStore handles read receipt persistence.
type ReceiptStore interface {
	// MarkRead records that reader has read the message. Repeats are ignored.
	// It returns ErrNotFound when no message with that id exists.
	MarkRead(ctx context.Context, messageID int64, reader string) error

	// ListReceipts groups readers by message for the given ids.
	ListReceipts(ctx context.Context, messageIDs []int64) (map[int64][]string, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	ReceiptStore

	// Close closes the underlying database connection.
	Close() error
}
