package core

import "github.com/vovakirdan/lobbychat/internal/metrics"

// deliver hands ev to c without blocking the event loop.
func (r *Router) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
		metrics.DroppedEvents.Inc()
		r.log.Warn().
			Str("conn_id", string(c.ID)).
			Stringer("event", ev.Kind).
			Msg("client buffer full, event dropped")
	}
}

// broadcast sends ev to every open connection.
func (r *Router) broadcast(ev *Event) {
	for _, c := range r.state.clients {
		r.deliver(c, ev)
	}
}

// sendToIdentity sends ev to every connection of identity.
func (r *Router) sendToIdentity(identity string, ev *Event) int {
	sent := 0
	for _, id := range r.state.sessions.Connections(identity) {
		if c, ok := r.state.clients[id]; ok {
			r.deliver(c, ev)
			sent++
		}
	}
	return sent
}

func (r *Router) broadcastTyping() {
	r.broadcast(&Event{
		Kind:       EventTypingRoster,
		Identities: r.state.typing.CurrentTypingIdentities(r.state.registry),
	})
}

func (r *Router) updateGauges() {
	metrics.Connections.Set(float64(len(r.state.clients)))
	metrics.OnlineIdentities.Set(float64(r.state.sessions.Count()))
}
