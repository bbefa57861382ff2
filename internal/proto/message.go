package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeJoin           = "join"
	InboundTypeMessage        = "message"
	InboundTypePrivateMessage = "privateMessage"
	InboundTypeTyping         = "typing"
	InboundTypeStopTyping     = "stopTyping"
	InboundTypeMarkRead       = "markRead"
	InboundTypeFocusPrivate   = "focusPrivateChat"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Error codes sent in Outbound.Error.
const (
	CodeBadRequest     = "bad_request"
	CodeInvalidMessage = "invalid_message"
	CodeRateLimited    = "rate_limited"
	CodeUnauthorized   = "unauthorized"
	CodeInternal       = "internal"

	CodeUnsupportedVersion = "unsupported_version"
)

// TimeFormat is ISO 8601 in UTC with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// JoinData binds the connection to an identity. Token, when present, takes
// precedence over Identity and Secret.
type JoinData struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// MessageData is a room message from the client.
type MessageData struct {
	Body string `json:"body"`
}

// PrivateMessageData is a directed message.
type PrivateMessageData struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// MarkReadData lists messages the client has displayed.
type MarkReadData struct {
	MessageIDs []int64 `json:"messageIds"`
}

// FocusData signals an open private conversation.
type FocusData struct {
	OtherIdentity string `json:"otherIdentity"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventPresence is sent for presence-joined and presence-left.
type EventPresence struct {
	Identity        string `json:"identity"`
	TotalIdentities int    `json:"totalIdentities"`
}

// EventCount is sent to an identity's additional connections.
type EventCount struct {
	TotalIdentities int `json:"totalIdentities"`
}

// EventRoster lists identities, for the roster snapshot and typing updates.
type EventRoster struct {
	Identities []string `json:"identities"`
}

// HistoryMessage is one entry of the history event.
type HistoryMessage struct {
	ID        int64    `json:"id"`
	Identity  string   `json:"identity"`
	Body      string   `json:"body"`
	Timestamp string   `json:"timestamp"`
	ReadBy    []string `json:"readBy"`
}

// EventHistory carries recent room messages, oldest first.
type EventHistory struct {
	Messages []HistoryMessage `json:"records"`
}

// EventMessage is a room message.
type EventMessage struct {
	ID        int64  `json:"id"`
	Identity  string `json:"identity"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// EventPrivateMessage is a directed message.
type EventPrivateMessage struct {
	ID        int64  `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// EventReadReceipt announces a first read.
type EventReadReceipt struct {
	MessageID      int64  `json:"messageId"`
	ReaderIdentity string `json:"readerIdentity"`
}

// EventChatExpired closes an idle private conversation.
type EventChatExpired struct {
	OtherIdentity string `json:"otherIdentity"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
