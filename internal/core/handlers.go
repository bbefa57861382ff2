package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/lobbychat/internal/metrics"
	"github.com/vovakirdan/lobbychat/internal/store"
)

func (r *Router) handleCommand(ctx context.Context, c *Client, cmd *Command) error {
	if _, ok := r.state.clients[c.ID]; !ok {
		return ErrUnknownConnection
	}

	switch cmd.Kind {
	case CommandJoin:
		return r.handleJoin(ctx, c, cmd)
	case CommandSendMessage:
		return r.handleMessage(ctx, c, cmd)
	case CommandPrivateMessage:
		return r.handlePrivateMessage(ctx, c, cmd)
	case CommandTyping:
		return r.handleTyping(c, true)
	case CommandStopTyping:
		return r.handleTyping(c, false)
	case CommandMarkRead:
		return r.handleMarkRead(ctx, c, cmd)
	case CommandFocusPrivateChat:
		return r.handleFocus(c, cmd)
	default:
		return fmt.Errorf("unsupported command kind %d", cmd.Kind)
	}
}

func (r *Router) handleJoin(ctx context.Context, c *Client, cmd *Command) error {
	identity := strings.TrimSpace(cmd.Identity)
	if identity == "" {
		return ErrEmptyIdentity
	}
	if !r.state.registry.Bind(c.ID, identity, cmd.OwnerID) {
		return ErrAlreadyJoined
	}

	res := r.state.sessions.AddConnection(identity, c.ID)
	r.updateGauges()

	if res.FirstConnection {
		r.broadcast(&Event{
			Kind:            EventPresenceJoined,
			Identity:        identity,
			TotalIdentities: res.TotalIdentities,
		})
	} else {
		r.deliver(c, &Event{Kind: EventCountUpdate, TotalIdentities: res.TotalIdentities})
	}

	r.deliver(c, &Event{
		Kind:       EventRosterSnapshot,
		Identities: r.othersOnline(identity),
	})

	r.log.Info().
		Str("conn_id", string(c.ID)).
		Str("identity", identity).
		Bool("first_connection", res.FirstConnection).
		Int("total_identities", res.TotalIdentities).
		Msg("identity joined")

	return r.sendHistory(ctx, c)
}

func (r *Router) othersOnline(self string) []string {
	all := r.state.sessions.Identities()
	out := make([]string, 0, len(all))
	for _, identity := range all {
		if identity != self {
			out = append(out, identity)
		}
	}
	return out
}

func (r *Router) sendHistory(ctx context.Context, c *Client) error {
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	records, err := r.store.RecentMessages(sctx, r.opts.HistoryLimit)
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("recent").Inc()
		return &PersistenceError{Op: "load history", Err: err}
	}

	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	if len(ids) > 0 {
		persisted, err := r.store.ListReceipts(sctx, ids)
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues("list_receipts").Inc()
			r.log.Warn().Err(err).Msg("failed to load read receipts for history")
		}
		for id, readers := range persisted {
			r.state.receipts.Seed(id, readers)
		}
	}

	messages := make([]Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, Message{
			ID:        rec.ID,
			From:      rec.Author,
			Text:      rec.Body,
			CreatedAt: rec.CreatedAt,
			ReadBy:    r.state.receipts.Readers(rec.ID),
		})
	}

	r.deliver(c, &Event{Kind: EventHistory, Messages: messages})
	return nil
}

func (r *Router) handleMessage(ctx context.Context, c *Client, cmd *Command) error {
	identity, ok := r.state.registry.Resolve(c.ID)
	if !ok {
		return ErrNotJoined
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return ErrEmptyMessage
	}

	if r.state.typing.ClearTyping(c.ID) {
		r.broadcastTyping()
	}

	rec := &store.Message{
		Author:    identity,
		Body:      cmd.Text,
		UserID:    r.state.registry.Owner(c.ID),
		CreatedAt: r.clock.Now().UTC(),
	}
	if err := r.save(ctx, rec); err != nil {
		return err
	}
	metrics.Messages.WithLabelValues(metrics.KindRoom).Inc()

	r.broadcast(&Event{
		Kind: EventNewMessage,
		Message: Message{
			ID:        rec.ID,
			From:      identity,
			Text:      rec.Body,
			CreatedAt: rec.CreatedAt,
		},
	})
	return nil
}

func (r *Router) handlePrivateMessage(ctx context.Context, c *Client, cmd *Command) error {
	from, ok := r.state.registry.Resolve(c.ID)
	if !ok {
		return ErrNotJoined
	}
	to := strings.TrimSpace(cmd.Identity)
	if to == "" {
		return ErrEmptyIdentity
	}
	if to == from {
		return ErrSelfPrivateMessage
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return ErrEmptyMessage
	}

	// Audience is fixed before the write.
	recipients := r.clientsOf(to)
	if len(recipients) == 0 {
		return fmt.Errorf("%w: %s", ErrRecipientOffline, to)
	}
	senders := r.clientsOf(from)

	now := r.clock.Now().UTC()
	r.state.activity.Touch(from, to, now)

	rec := &store.Message{
		Author:    from,
		Body:      cmd.Text,
		UserID:    r.state.registry.Owner(c.ID),
		Recipient: &to,
		CreatedAt: now,
	}
	if err := r.save(ctx, rec); err != nil {
		return err
	}
	metrics.Messages.WithLabelValues(metrics.KindPrivate).Inc()

	ev := &Event{
		Kind: EventPrivateMessage,
		Message: Message{
			ID:        rec.ID,
			From:      from,
			To:        to,
			Text:      rec.Body,
			CreatedAt: rec.CreatedAt,
		},
	}
	for _, rc := range recipients {
		r.deliver(rc, ev)
	}
	for _, sc := range senders {
		r.deliver(sc, ev)
	}
	return nil
}

func (r *Router) clientsOf(identity string) []*Client {
	ids := r.state.sessions.Connections(identity)
	out := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.state.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Router) handleTyping(c *Client, typing bool) error {
	if _, ok := r.state.registry.Resolve(c.ID); !ok {
		return ErrNotJoined
	}

	var changed bool
	if typing {
		changed = r.state.typing.SetTyping(c.ID)
	} else {
		changed = r.state.typing.ClearTyping(c.ID)
	}
	if changed {
		r.broadcastTyping()
	}
	return nil
}

func (r *Router) handleMarkRead(ctx context.Context, c *Client, cmd *Command) error {
	reader, ok := r.state.registry.Resolve(c.ID)
	if !ok {
		return ErrNotJoined
	}

	for _, id := range cmd.MessageIDs {
		if id <= 0 || r.state.receipts.HasRead(id, reader) {
			continue
		}
		if !r.persistReceipt(ctx, id, reader) {
			continue
		}
		r.state.receipts.MarkRead(id, reader)
		metrics.ReadReceipts.Inc()

		r.broadcast(&Event{
			Kind:      EventReadReceipt,
			MessageID: id,
			Identity:  reader,
		})
	}
	return nil
}

// persistReceipt reports false only when the message does not exist. Other
// storage failures are logged and the in-memory ledger stays authoritative.
func (r *Router) persistReceipt(ctx context.Context, messageID int64, reader string) bool {
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	err := r.store.MarkRead(sctx, messageID, reader)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		r.log.Debug().
			Int64("message_id", messageID).
			Str("identity", reader).
			Msg("read receipt for unknown message discarded")
		return false
	default:
		metrics.PersistenceFailures.WithLabelValues("mark_read").Inc()
		r.log.Warn().Err(err).
			Int64("message_id", messageID).
			Str("identity", reader).
			Msg("failed to persist read receipt")
		return true
	}
}

func (r *Router) handleFocus(c *Client, cmd *Command) error {
	self, ok := r.state.registry.Resolve(c.ID)
	if !ok {
		return ErrNotJoined
	}
	other := strings.TrimSpace(cmd.Identity)
	if other == "" {
		return ErrEmptyIdentity
	}
	if other == self {
		return ErrSelfPrivateMessage
	}
	r.state.activity.Touch(self, other, r.clock.Now().UTC())
	return nil
}

func (r *Router) handleDisconnect(c *Client) {
	delete(r.state.clients, c.ID)
	defer r.updateGauges()

	identity, ok := r.state.registry.Resolve(c.ID)
	if !ok {
		r.log.Debug().Str("conn_id", string(c.ID)).Msg("connection closed before join")
		return
	}

	res := r.state.sessions.RemoveConnection(identity, c.ID)
	wasTyping := r.state.typing.ClearTyping(c.ID)
	r.state.registry.Unbind(c.ID)

	if wasTyping {
		r.broadcastTyping()
	}
	if res.LastConnection {
		r.broadcast(&Event{
			Kind:            EventPresenceLeft,
			Identity:        identity,
			TotalIdentities: res.TotalIdentities,
		})
	}

	r.log.Info().
		Str("conn_id", string(c.ID)).
		Str("identity", identity).
		Bool("last_connection", res.LastConnection).
		Int("total_identities", res.TotalIdentities).
		Msg("connection closed")
}

func (r *Router) sweep() {
	now := r.clock.Now().UTC()
	for _, pair := range r.state.activity.Sweep(now, r.opts.PrivateInactivity) {
		metrics.PrivateChatsExpired.Inc()
		for _, identity := range [...]string{pair.A, pair.B} {
			r.sendToIdentity(identity, &Event{
				Kind:     EventChatExpired,
				Identity: pair.Other(identity),
			})
		}
		r.log.Debug().Stringer("pair", pair).Msg("private chat expired")
	}
}

func (r *Router) save(ctx context.Context, rec *store.Message) error {
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	if err := r.store.SaveMessage(sctx, rec); err != nil {
		op := "save message"
		label := "save_message"
		if rec.Private() {
			op = "save private message"
			label = "save_private_message"
		}
		metrics.PersistenceFailures.WithLabelValues(label).Inc()
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (r *Router) logCommandError(c *Client, cmd *Command, err error) {
	var persistErr *PersistenceError
	switch {
	case isProtocolViolation(err):
		r.log.Debug().Err(err).
			Str("conn_id", string(c.ID)).
			Stringer("command", cmd.Kind).
			Msg("command discarded")
	case errors.As(err, &persistErr):
		r.log.Error().Err(persistErr.Err).
			Str("conn_id", string(c.ID)).
			Str("op", persistErr.Op).
			Stringer("command", cmd.Kind).
			Msg("persistence failed, event aborted")
	default:
		r.log.Warn().Err(err).
			Str("conn_id", string(c.ID)).
			Stringer("command", cmd.Kind).
			Msg("command failed")
	}
}
