package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoin binds the connection to an identity.
	CommandJoin CommandKind = iota
	// CommandSendMessage posts a message to the shared room.
	CommandSendMessage
	// CommandPrivateMessage sends a message to every connection of one identity.
	CommandPrivateMessage
	// CommandTyping flags the connection as typing.
	CommandTyping
	// CommandStopTyping clears the typing flag.
	CommandStopTyping
	// CommandMarkRead acknowledges a batch of message ids.
	CommandMarkRead
	// CommandFocusPrivateChat refreshes a private conversation without sending.
	CommandFocusPrivateChat
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoin:
		return "join"
	case CommandSendMessage:
		return "message"
	case CommandPrivateMessage:
		return "privateMessage"
	case CommandTyping:
		return "typing"
	case CommandStopTyping:
		return "stopTyping"
	case CommandMarkRead:
		return "markRead"
	case CommandFocusPrivateChat:
		return "focusPrivateChat"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// Identity is the resolved display label for CommandJoin, and the peer
	// for CommandPrivateMessage and CommandFocusPrivateChat.
	Identity string
	// OwnerID is the storage user id attached to messages from this connection.
	OwnerID *int64

	Text       string
	MessageIDs []int64
}
