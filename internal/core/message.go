package core

import "time"

// Message is the domain model for a chat message.
// To is empty for room messages.
type Message struct {
	ID        int64
	From      string
	To        string
	Text      string
	CreatedAt time.Time
	ReadBy    []string
}
