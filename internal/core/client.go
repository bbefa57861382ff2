package core

// ConnID identifies one physical transport connection.
type ConnID string

// Client is a live connection as seen by the core layer. The transport reads
// Events and forwards them to the remote peer.
type Client struct {
	ID     ConnID
	Events chan *Event
}

// NewClient constructs a client with a buffered event channel.
func NewClient(id ConnID, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
	}
}
