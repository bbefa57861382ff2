package http

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/vovakirdan/lobbychat/internal/auth"
	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/proto"
	"github.com/vovakirdan/lobbychat/internal/store"
)

var errBadPayload = &proto.Error{Code: proto.CodeBadRequest, Msg: "malformed payload"}

func (h *WSHandler) inboundToCommand(ctx context.Context, client *core.Client, inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin:
		var join proto.JoinData
		if err := decode(inbound.Data, &join); err != nil {
			return nil, errBadPayload
		}
		if join.Protocol != 0 && join.Protocol != proto.ProtocolVersion {
			return nil, &proto.Error{Code: proto.CodeUnsupportedVersion, Msg: "unsupported protocol version"}
		}
		return h.joinCommand(ctx, client, join)
	case proto.InboundTypeMessage:
		var msg proto.MessageData
		if err := decode(inbound.Data, &msg); err != nil {
			return nil, errBadPayload
		}
		if protoErr := h.checkLength(msg.Body); protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandSendMessage, Text: msg.Body}, nil
	case proto.InboundTypePrivateMessage:
		var msg proto.PrivateMessageData
		if err := decode(inbound.Data, &msg); err != nil {
			return nil, errBadPayload
		}
		if protoErr := h.checkLength(msg.Body); protoErr != nil {
			return nil, protoErr
		}
		return &core.Command{Kind: core.CommandPrivateMessage, Identity: msg.To, Text: msg.Body}, nil
	case proto.InboundTypeTyping:
		return &core.Command{Kind: core.CommandTyping}, nil
	case proto.InboundTypeStopTyping:
		return &core.Command{Kind: core.CommandStopTyping}, nil
	case proto.InboundTypeMarkRead:
		var mark proto.MarkReadData
		if err := decode(inbound.Data, &mark); err != nil {
			return nil, errBadPayload
		}
		if len(mark.MessageIDs) == 0 {
			return nil, nil
		}
		return &core.Command{Kind: core.CommandMarkRead, MessageIDs: mark.MessageIDs}, nil
	case proto.InboundTypeFocusPrivate:
		var focus proto.FocusData
		if err := decode(inbound.Data, &focus); err != nil {
			return nil, errBadPayload
		}
		return &core.Command{Kind: core.CommandFocusPrivateChat, Identity: focus.OtherIdentity}, nil
	default:
		return nil, &proto.Error{Code: proto.CodeInvalidMessage, Msg: "unknown message type"}
	}
}

// joinCommand resolves the display label before the request reaches the hub,
// so storage lookups for users never block the event loop.
func (h *WSHandler) joinCommand(ctx context.Context, client *core.Client, join proto.JoinData) (*core.Command, *proto.Error) {
	var (
		id  auth.Identity
		err error
	)
	if join.Token != "" {
		id, err = h.auth.ValidateToken(join.Token)
		if err == nil {
			// Messages reference users(id), so the token must still name a stored user.
			if _, perr := h.auth.Profile(ctx, id.UserID); errors.Is(perr, store.ErrNotFound) {
				err = auth.ErrInvalidToken
			} else if perr != nil {
				err = perr
			}
		}
	} else {
		id, err = h.auth.ResolveIdentity(ctx, join.Identity, join.Secret)
	}

	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidToken):
		return nil, &proto.Error{Code: proto.CodeUnauthorized, Msg: "invalid token"}
	case errors.Is(err, auth.ErrInvalidUsername):
		return nil, &proto.Error{Code: proto.CodeBadRequest, Msg: "invalid username"}
	default:
		h.log.Error().Err(err).Str("conn_id", string(client.ID)).Msg("failed to resolve identity")
		return nil, &proto.Error{Code: proto.CodeInternal, Msg: "could not resolve identity"}
	}

	owner := id.UserID
	return &core.Command{Kind: core.CommandJoin, Identity: id.DisplayName, OwnerID: &owner}, nil
}

func (h *WSHandler) checkLength(body string) *proto.Error {
	if h.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(body) > h.cfg.MaxMessageLength {
		return &proto.Error{Code: proto.CodeInvalidMessage, Msg: "message too long"}
	}
	return nil
}

// decode tolerates a missing data field for payload-free frames.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}

	switch event.Kind {
	case core.EventPresenceJoined, core.EventPresenceLeft:
		out.Data = proto.EventPresence{
			Identity:        event.Identity,
			TotalIdentities: event.TotalIdentities,
		}
	case core.EventCountUpdate:
		out.Data = proto.EventCount{TotalIdentities: event.TotalIdentities}
	case core.EventRosterSnapshot, core.EventTypingRoster:
		out.Data = proto.EventRoster{Identities: nonNil(event.Identities)}
	case core.EventHistory:
		messages := make([]proto.HistoryMessage, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, proto.HistoryMessage{
				ID:        msg.ID,
				Identity:  msg.From,
				Body:      msg.Text,
				Timestamp: proto.FormatTime(msg.CreatedAt),
				ReadBy:    nonNil(msg.ReadBy),
			})
		}
		out.Data = proto.EventHistory{Messages: messages}
	case core.EventNewMessage:
		out.Data = proto.EventMessage{
			ID:        event.Message.ID,
			Identity:  event.Message.From,
			Body:      event.Message.Text,
			Timestamp: proto.FormatTime(event.Message.CreatedAt),
		}
	case core.EventPrivateMessage:
		out.Data = proto.EventPrivateMessage{
			ID:        event.Message.ID,
			From:      event.Message.From,
			To:        event.Message.To,
			Body:      event.Message.Text,
			Timestamp: proto.FormatTime(event.Message.CreatedAt),
		}
	case core.EventReadReceipt:
		out.Data = proto.EventReadReceipt{
			MessageID:      event.MessageID,
			ReaderIdentity: event.Identity,
		}
	case core.EventChatExpired:
		out.Data = proto.EventChatExpired{OtherIdentity: event.Identity}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
