package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/lobbychat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// drain returns everything already buffered on ch.
func drain(ch <-chan *Event) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countKind(events []*Event, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// settle waits until the router has processed everything queued so far.
func settle(t *testing.T, r *Router) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
}

type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	messages   []*store.Message
	receipts   map[int64][]string
	saveErr    error
	recentErr  error
	receiptErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{receipts: make(map[int64][]string)}
}

func (s *fakeStore) SaveMessage(_ context.Context, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	s.nextID++
	msg.ID = s.nextID
	cp := *msg
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *fakeStore) RecentMessages(_ context.Context, limit int) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recentErr != nil {
		return nil, s.recentErr
	}
	var public []*store.Message
	for _, m := range s.messages {
		if !m.Private() {
			public = append(public, m)
		}
	}
	if len(public) > limit {
		public = public[len(public)-limit:]
	}
	return public, nil
}

func (s *fakeStore) MarkRead(_ context.Context, messageID int64, reader string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.receiptErr != nil {
		return s.receiptErr
	}
	known := false
	for _, m := range s.messages {
		if m.ID == messageID {
			known = true
			break
		}
	}
	if !known {
		return store.ErrNotFound
	}
	for _, r := range s.receipts[messageID] {
		if r == reader {
			return nil
		}
	}
	s.receipts[messageID] = append(s.receipts[messageID], reader)
	return nil
}

func (s *fakeStore) ListReceipts(_ context.Context, ids []int64) (map[int64][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64][]string)
	for _, id := range ids {
		if readers, ok := s.receipts[id]; ok {
			out[id] = append([]string(nil), readers...)
		}
	}
	return out, nil
}

func (s *fakeStore) saved() []*store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*store.Message(nil), s.messages...)
}

func (s *fakeStore) setSaveErr(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

type testRouter struct {
	*Router
	store *fakeStore
	clock *clock.Mock
	t     *testing.T
	seq   int
}

func startRouter(t *testing.T) *testRouter {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	st := newFakeStore()
	mock := clock.NewMock()
	opts := DefaultOptions()
	opts.Clock = mock

	r := NewRouter(st, opts)
	go r.Run(ctx)

	return &testRouter{Router: r, store: st, clock: mock, t: t}
}

// connect registers a new client and joins it as identity.
func (tr *testRouter) connect(identity string) *Client {
	tr.t.Helper()

	tr.seq++
	c := NewClient(ConnID(fmt.Sprintf("%s-%d", identity, tr.seq)), 64)
	if err := tr.RegisterClient(c); err != nil {
		tr.t.Fatalf("register: %v", err)
	}
	tr.submit(c, &Command{Kind: CommandJoin, Identity: identity})
	mustEvent(tr.t, c.Events, EventHistory)
	return c
}

func (tr *testRouter) submit(c *Client, cmd *Command) {
	tr.t.Helper()

	if err := tr.Submit(c, cmd); err != nil {
		tr.t.Fatalf("submit %v: %v", cmd.Kind, err)
	}
}
