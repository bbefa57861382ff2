package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRouterJoinMessageReceiptAndLeave(t *testing.T) {
	tr := startRouter(t)

	alice := NewClient("a", 64)
	if err := tr.RegisterClient(alice); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	tr.submit(alice, &Command{Kind: CommandJoin, Identity: "alice"})

	selfJoin := mustEvent(t, alice.Events, EventPresenceJoined)
	if selfJoin.Identity != "alice" || selfJoin.TotalIdentities != 1 {
		t.Fatalf("unexpected self join event: %+v", selfJoin)
	}
	if roster := mustEvent(t, alice.Events, EventRosterSnapshot); len(roster.Identities) != 0 {
		t.Fatalf("expected empty roster for first identity, got %v", roster.Identities)
	}
	mustEvent(t, alice.Events, EventHistory)

	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "earlier"})
	mustEvent(t, alice.Events, EventNewMessage)

	bob := NewClient("b", 64)
	if err := tr.RegisterClient(bob); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	tr.submit(bob, &Command{Kind: CommandJoin, Identity: "bob"})

	joined := mustEvent(t, alice.Events, EventPresenceJoined)
	if joined.Identity != "bob" || joined.TotalIdentities != 2 {
		t.Fatalf("unexpected join event: %+v", joined)
	}
	roster := mustEvent(t, bob.Events, EventRosterSnapshot)
	if len(roster.Identities) != 1 || roster.Identities[0] != "alice" {
		t.Fatalf("expected roster [alice], got %v", roster.Identities)
	}
	history := mustEvent(t, bob.Events, EventHistory)
	if len(history.Messages) != 1 || history.Messages[0].Text != "earlier" || history.Messages[0].From != "alice" {
		t.Fatalf("unexpected history: %+v", history.Messages)
	}

	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "hi"})

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventNewMessage)
		if ev.Message.From != "alice" || ev.Message.Text != "hi" || ev.Message.ID == 0 {
			t.Fatalf("unexpected message event for %s: %+v", c.ID, ev.Message)
		}
	}
	msgID := tr.store.saved()[1].ID

	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{msgID}})
	receipt := mustEvent(t, alice.Events, EventReadReceipt)
	if receipt.Identity != "bob" || receipt.MessageID != msgID {
		t.Fatalf("unexpected read receipt: %+v", receipt)
	}

	tr.UnregisterClient(bob)
	left := mustEvent(t, alice.Events, EventPresenceLeft)
	if left.Identity != "bob" || left.TotalIdentities != 1 {
		t.Fatalf("unexpected leave event: %+v", left)
	}
}

func TestRouterMultiTabSinglePresence(t *testing.T) {
	tr := startRouter(t)

	observer := tr.connect("bob")
	drain(observer.Events)

	const tabs = 3
	clients := make([]*Client, 0, tabs)
	clients = append(clients, tr.connect("alice"))
	for i := 1; i < tabs; i++ {
		c := NewClient(ConnID("alice-tab-"+string(rune('0'+i))), 64)
		if err := tr.RegisterClient(c); err != nil {
			t.Fatalf("register tab: %v", err)
		}
		tr.submit(c, &Command{Kind: CommandJoin, Identity: "alice"})
		update := mustEvent(t, c.Events, EventCountUpdate)
		if update.TotalIdentities != 2 {
			t.Fatalf("expected count update of 2, got %d", update.TotalIdentities)
		}
		clients = append(clients, c)
	}
	settle(t, tr.Router)

	events := drain(observer.Events)
	if n := countKind(events, EventPresenceJoined); n != 1 {
		t.Fatalf("expected exactly one presence-joined, got %d", n)
	}

	for _, c := range clients[:tabs-1] {
		tr.UnregisterClient(c)
	}
	settle(t, tr.Router)
	if n := countKind(drain(observer.Events), EventPresenceLeft); n != 0 {
		t.Fatalf("expected no presence-left while a tab remains, got %d", n)
	}

	tr.UnregisterClient(clients[tabs-1])
	settle(t, tr.Router)
	events = drain(observer.Events)
	if n := countKind(events, EventPresenceLeft); n != 1 {
		t.Fatalf("expected exactly one presence-left, got %d", n)
	}

	snap, err := tr.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Connections != 1 || len(snap.Identities) != 1 || snap.Identities[0] != "bob" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestRouterPersistenceFailureAbortsBroadcast(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	settle(t, tr.Router)
	drain(alice.Events)
	drain(bob.Events)

	tr.store.setSaveErr(errors.New("disk full"))
	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "lost"})
	tr.submit(alice, &Command{Kind: CommandPrivateMessage, Identity: "bob", Text: "lost too"})
	settle(t, tr.Router)

	for _, c := range []*Client{alice, bob} {
		events := drain(c.Events)
		if countKind(events, EventNewMessage)+countKind(events, EventPrivateMessage) != 0 {
			t.Fatalf("expected no message events for %s after failed save, got %+v", c.ID, events)
		}
	}

	tr.store.setSaveErr(nil)
	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "kept"})
	if ev := mustEvent(t, bob.Events, EventNewMessage); ev.Message.Text != "kept" {
		t.Fatalf("unexpected message after recovery: %+v", ev.Message)
	}
}

func TestRouterPrivateMessageFanout(t *testing.T) {
	tr := startRouter(t)

	alice1 := tr.connect("alice")
	alice2 := tr.connect("alice")
	bob1 := tr.connect("bob")
	bob2 := tr.connect("bob")
	carol := tr.connect("carol")
	settle(t, tr.Router)
	all := []*Client{alice1, alice2, bob1, bob2, carol}
	for _, c := range all {
		drain(c.Events)
	}

	tr.submit(alice1, &Command{Kind: CommandPrivateMessage, Identity: "bob", Text: "psst"})
	for _, c := range all[:4] {
		ev := mustEvent(t, c.Events, EventPrivateMessage)
		if ev.Message.From != "alice" || ev.Message.To != "bob" || ev.Message.Text != "psst" {
			t.Fatalf("unexpected private message for %s: %+v", c.ID, ev.Message)
		}
	}
	settle(t, tr.Router)
	if n := countKind(drain(carol.Events), EventPrivateMessage); n != 0 {
		t.Fatalf("bystander received %d private messages", n)
	}

	saved := tr.store.saved()
	last := saved[len(saved)-1]
	if !last.Private() || *last.Recipient != "bob" || last.Author != "alice" {
		t.Fatalf("expected directed record, got %+v", last)
	}

	tr.submit(alice1, &Command{Kind: CommandPrivateMessage, Identity: "dave", Text: "anyone?"})
	tr.submit(alice1, &Command{Kind: CommandPrivateMessage, Identity: "alice", Text: "me"})
	settle(t, tr.Router)
	if got := len(tr.store.saved()); got != len(saved) {
		t.Fatalf("expected undeliverable private messages not to persist, saved %d -> %d", len(saved), got)
	}
	if n := countKind(drain(alice1.Events), EventPrivateMessage); n != 0 {
		t.Fatalf("expected no echo for undeliverable message, got %d", n)
	}

	// Private records stay out of the shared history.
	history, err := tr.store.RecentMessages(context.Background(), 50)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty public history, got %v (%v)", history, err)
	}
}

func TestRouterTypingRoster(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	settle(t, tr.Router)
	drain(alice.Events)
	drain(bob.Events)

	tr.submit(alice, &Command{Kind: CommandTyping})
	roster := mustEvent(t, bob.Events, EventTypingRoster)
	if len(roster.Identities) != 1 || roster.Identities[0] != "alice" {
		t.Fatalf("expected [alice] typing, got %v", roster.Identities)
	}

	tr.submit(alice, &Command{Kind: CommandTyping})
	settle(t, tr.Router)
	if n := countKind(drain(bob.Events), EventTypingRoster); n != 0 {
		t.Fatalf("expected no update for repeated typing, got %d", n)
	}

	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "done typing"})
	settle(t, tr.Router)
	events := drain(bob.Events)
	if len(events) != 2 || events[0].Kind != EventTypingRoster || len(events[0].Identities) != 0 || events[1].Kind != EventNewMessage {
		t.Fatalf("expected cleared typing roster before message, got %+v", events)
	}
	drain(alice.Events)

	tr.submit(bob, &Command{Kind: CommandTyping})
	if roster := mustEvent(t, alice.Events, EventTypingRoster); len(roster.Identities) != 1 || roster.Identities[0] != "bob" {
		t.Fatalf("expected [bob] typing, got %v", roster.Identities)
	}
	tr.UnregisterClient(bob)
	cleared := mustEvent(t, alice.Events, EventTypingRoster)
	if len(cleared.Identities) != 0 {
		t.Fatalf("expected disconnected typist to be dropped, got %v", cleared.Identities)
	}
	mustEvent(t, alice.Events, EventPresenceLeft)

	tr.submit(alice, &Command{Kind: CommandStopTyping})
	settle(t, tr.Router)
	if n := countKind(drain(alice.Events), EventTypingRoster); n != 0 {
		t.Fatalf("expected stop typing without typing to be a no-op, got %d", n)
	}
}

func TestRouterReadReceiptsAreIdempotent(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "read me"})
	id := mustEvent(t, bob.Events, EventNewMessage).Message.ID
	settle(t, tr.Router)
	drain(alice.Events)

	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{id, id}})
	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{id}})
	settle(t, tr.Router)

	if n := countKind(drain(alice.Events), EventReadReceipt); n != 1 {
		t.Fatalf("expected one read receipt, got %d", n)
	}
	receipts, _ := tr.store.ListReceipts(context.Background(), []int64{id})
	if got := receipts[id]; len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected persisted receipt for bob, got %v", got)
	}
}

func TestRouterSeedsPersistedReceiptsOnJoin(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "old"})
	id := mustEvent(t, alice.Events, EventNewMessage).Message.ID
	// Receipt left over from a previous process.
	_ = tr.store.MarkRead(context.Background(), id, "bob")

	bob := NewClient("bob-1", 64)
	if err := tr.RegisterClient(bob); err != nil {
		t.Fatalf("register: %v", err)
	}
	tr.submit(bob, &Command{Kind: CommandJoin, Identity: "bob"})
	history := mustEvent(t, bob.Events, EventHistory)
	if len(history.Messages) != 1 || len(history.Messages[0].ReadBy) != 1 || history.Messages[0].ReadBy[0] != "bob" {
		t.Fatalf("expected history to carry persisted readers, got %+v", history.Messages)
	}
	settle(t, tr.Router)
	drain(alice.Events)

	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{id}})
	settle(t, tr.Router)
	if n := countKind(drain(alice.Events), EventReadReceipt); n != 0 {
		t.Fatalf("expected seeded receipt not to be re-announced, got %d", n)
	}
}

func TestRouterDiscardsCommandsBeforeJoin(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	drain(alice.Events)

	ghost := NewClient("ghost", 64)
	if err := tr.RegisterClient(ghost); err != nil {
		t.Fatalf("register: %v", err)
	}
	tr.submit(ghost, &Command{Kind: CommandSendMessage, Text: "hello?"})
	tr.submit(ghost, &Command{Kind: CommandTyping})
	tr.submit(ghost, &Command{Kind: CommandMarkRead, MessageIDs: []int64{1}})
	tr.submit(ghost, &Command{Kind: CommandPrivateMessage, Identity: "alice", Text: "psst"})
	settle(t, tr.Router)

	if events := drain(alice.Events); len(events) != 0 {
		t.Fatalf("expected no events from unjoined connection, got %+v", events)
	}
	if n := len(tr.store.saved()); n != 0 {
		t.Fatalf("expected nothing persisted, got %d", n)
	}

	// Commands after teardown are ignored as well.
	tr.UnregisterClient(ghost)
	tr.submit(ghost, &Command{Kind: CommandJoin, Identity: "ghost"})
	snap, err := tr.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Identities) != 1 || snap.Identities[0] != "alice" {
		t.Fatalf("unexpected identities after closed join: %v", snap.Identities)
	}
}

func TestRouterDoubleJoinIsIgnored(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	tr.submit(alice, &Command{Kind: CommandJoin, Identity: "mallory"})
	settle(t, tr.Router)

	snap, err := tr.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Identities) != 1 || snap.Identities[0] != "alice" {
		t.Fatalf("expected binding to stay alice, got %v", snap.Identities)
	}

	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "still me"})
	if ev := mustEvent(t, alice.Events, EventNewMessage); ev.Message.From != "alice" {
		t.Fatalf("expected message from alice, got %q", ev.Message.From)
	}
}

func TestRouterPreservesMessageOrder(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	bodies := []string{"one", "two", "three"}
	for _, body := range bodies {
		tr.submit(alice, &Command{Kind: CommandSendMessage, Text: body})
	}

	var lastID int64
	for _, want := range bodies {
		ev := mustEvent(t, bob.Events, EventNewMessage)
		if ev.Message.Text != want {
			t.Fatalf("expected %q, got %q", want, ev.Message.Text)
		}
		if ev.Message.ID <= lastID {
			t.Fatalf("expected increasing ids, got %d after %d", ev.Message.ID, lastID)
		}
		lastID = ev.Message.ID
	}

	for i, rec := range tr.store.saved() {
		if rec.Body != bodies[i] {
			t.Fatalf("persisted order mismatch at %d: %q", i, rec.Body)
		}
	}
}

func TestRouterExpiresIdlePrivateChats(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	tr.submit(alice, &Command{Kind: CommandPrivateMessage, Identity: "bob", Text: "hi"})
	mustEvent(t, bob.Events, EventPrivateMessage)
	mustEvent(t, alice.Events, EventPrivateMessage)

	tr.clock.Add(59 * time.Second)
	settle(t, tr.Router)
	for _, c := range []*Client{alice, bob} {
		if n := countKind(drain(c.Events), EventChatExpired); n != 0 {
			t.Fatalf("chat expired too early for %s", c.ID)
		}
	}

	tr.clock.Add(11 * time.Second)
	if ev := mustEvent(t, alice.Events, EventChatExpired); ev.Identity != "bob" {
		t.Fatalf("expected alice to be told about bob, got %q", ev.Identity)
	}
	if ev := mustEvent(t, bob.Events, EventChatExpired); ev.Identity != "alice" {
		t.Fatalf("expected bob to be told about alice, got %q", ev.Identity)
	}

	tr.clock.Add(30 * time.Second)
	settle(t, tr.Router)
	for _, c := range []*Client{alice, bob} {
		if n := countKind(drain(c.Events), EventChatExpired); n != 0 {
			t.Fatalf("expected a single expiry for %s, got %d more", c.ID, n)
		}
	}
}

func TestRouterFocusKeepsPrivateChatAlive(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	tr.submit(alice, &Command{Kind: CommandPrivateMessage, Identity: "bob", Text: "hi"})
	mustEvent(t, bob.Events, EventPrivateMessage)

	tr.clock.Add(50 * time.Second)
	tr.submit(bob, &Command{Kind: CommandFocusPrivateChat, Identity: "alice"})
	settle(t, tr.Router)

	tr.clock.Add(20 * time.Second)
	settle(t, tr.Router)
	if n := countKind(drain(alice.Events), EventChatExpired); n != 0 {
		t.Fatalf("expected focus to refresh the conversation")
	}

	// The offline side is skipped; the online side is still told.
	tr.UnregisterClient(bob)
	tr.clock.Add(60 * time.Second)
	if ev := mustEvent(t, alice.Events, EventChatExpired); ev.Identity != "bob" {
		t.Fatalf("unexpected expiry target %q", ev.Identity)
	}
}

func TestRouterStopsAcceptingAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRouter(newFakeStore(), DefaultOptions())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := r.RegisterClient(NewClient("late", 1)); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if _, err := r.Snapshot(context.Background()); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped from snapshot, got %v", err)
	}
}

func TestRouterJoinSurvivesHistoryFailure(t *testing.T) {
	tr := startRouter(t)
	tr.store.mu.Lock()
	tr.store.recentErr = errors.New("db down")
	tr.store.mu.Unlock()

	alice := NewClient("alice-1", 16)
	if err := tr.RegisterClient(alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	tr.submit(alice, &Command{Kind: CommandJoin, Identity: "alice"})

	joined := mustEvent(t, alice.Events, EventPresenceJoined)
	if joined.Identity != "alice" {
		t.Fatalf("unexpected presence event: %+v", joined)
	}
	mustEvent(t, alice.Events, EventRosterSnapshot)
	settle(t, tr.Router)
	if n := countKind(drain(alice.Events), EventHistory); n != 0 {
		t.Fatalf("expected no history event, got %d", n)
	}

	snap, err := tr.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Identities) != 1 || snap.Identities[0] != "alice" {
		t.Fatalf("expected alice to stay joined, got %v", snap.Identities)
	}
}

func TestRouterIgnoresReceiptsForUnknownMessages(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "real"})
	id := mustEvent(t, bob.Events, EventNewMessage).Message.ID
	settle(t, tr.Router)
	drain(alice.Events)

	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{424242}})
	settle(t, tr.Router)
	if n := countKind(drain(alice.Events), EventReadReceipt); n != 0 {
		t.Fatalf("expected no receipt for a message that was never stored, got %d", n)
	}

	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{424242, id}})
	ev := mustEvent(t, alice.Events, EventReadReceipt)
	if ev.MessageID != id || ev.Identity != "bob" {
		t.Fatalf("unexpected receipt: %+v", ev)
	}
}

func TestRouterReceiptSurvivesStorageFailure(t *testing.T) {
	tr := startRouter(t)

	alice := tr.connect("alice")
	bob := tr.connect("bob")
	tr.submit(alice, &Command{Kind: CommandSendMessage, Text: "flaky"})
	id := mustEvent(t, bob.Events, EventNewMessage).Message.ID
	settle(t, tr.Router)
	drain(alice.Events)

	tr.store.mu.Lock()
	tr.store.receiptErr = errors.New("disk full")
	tr.store.mu.Unlock()

	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{id}})
	tr.submit(bob, &Command{Kind: CommandMarkRead, MessageIDs: []int64{id}})
	settle(t, tr.Router)
	if n := countKind(drain(alice.Events), EventReadReceipt); n != 1 {
		t.Fatalf("expected exactly one receipt despite storage failure, got %d", n)
	}
}
