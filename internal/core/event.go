package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresenceJoined announces an identity's first connection.
	EventPresenceJoined EventKind = iota
	// EventPresenceLeft announces an identity's last disconnect.
	EventPresenceLeft
	// EventCountUpdate tells an extra tab the current online count.
	EventCountUpdate
	// EventRosterSnapshot lists the other identities online at join time.
	EventRosterSnapshot
	// EventHistory delivers recent room messages upon joining.
	EventHistory
	// EventNewMessage carries a room message.
	EventNewMessage
	// EventPrivateMessage carries a directed message.
	EventPrivateMessage
	// EventTypingRoster lists identities currently typing.
	EventTypingRoster
	// EventReadReceipt announces a first read of a message by an identity.
	EventReadReceipt
	// EventChatExpired closes an idle private conversation.
	EventChatExpired
)

func (k EventKind) String() string {
	switch k {
	case EventPresenceJoined:
		return "presence-joined"
	case EventPresenceLeft:
		return "presence-left"
	case EventCountUpdate:
		return "count-update"
	case EventRosterSnapshot:
		return "roster-snapshot"
	case EventHistory:
		return "history"
	case EventNewMessage:
		return "new-message"
	case EventPrivateMessage:
		return "private-message"
	case EventTypingRoster:
		return "typing-roster-update"
	case EventReadReceipt:
		return "read-receipt"
	case EventChatExpired:
		return "chat-expired"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
// A single Event value may be delivered to many clients and must not be
// mutated after it is emitted.
type Event struct {
	Kind EventKind

	// Identity is the subject of presence events, the reader of a read
	// receipt, and the other party of a chat-expired event.
	Identity        string
	TotalIdentities int
	Identities      []string  // roster snapshot and typing roster
	Message         Message   // new-message, private-message
	Messages        []Message // history
	MessageID       int64     // read-receipt
}
