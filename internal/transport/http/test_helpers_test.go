package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/lobbychat/internal/auth"
	"github.com/vovakirdan/lobbychat/internal/config"
	"github.com/vovakirdan/lobbychat/internal/core"
	"github.com/vovakirdan/lobbychat/internal/proto"
	"github.com/vovakirdan/lobbychat/internal/store"
	"github.com/vovakirdan/lobbychat/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	wsURL string
	store store.Store
	auth  *auth.Service
}

// rawOutbound keeps Data undecoded so tests can pick the payload type.
type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.Store, jwtSecret string) *auth.Service {
	t.Helper()
	return auth.NewService(st, testJWTConfig(jwtSecret), "test-salt")
}

func testJWTConfig(secret string) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(secret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret")

	router := core.NewRouter(st, core.Options{
		PrivateInactivity: cfg.Chat.PrivateInactivity,
		SweepInterval:     cfg.Chat.SweepInterval,
		HistoryLimit:      cfg.Chat.HistoryLimit,
		Logger:            &logger,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go router.Run(ctx)

	server := NewServer(router, authService, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)

	// Close the listener before the router so handlers drain first.
	t.Cleanup(cancel)
	t.Cleanup(ts.Close)

	return &testEnv{
		ts:    ts,
		wsURL: strings.Replace(ts.URL, "http", "ws", 1) + "/ws",
		store: st,
		auth:  authService,
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, e.wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	var payload json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", typ, err)
		}
		payload = b
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(rawOutbound) bool) rawOutbound {
	t.Helper()

	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(out) {
			return out
		}
	}
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, name string) rawOutbound {
	t.Helper()
	return readUntil(t, ctx, conn, func(o rawOutbound) bool {
		return o.Type == proto.OutboundTypeEvent && o.Event == name
	})
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()
	out := readUntil(t, ctx, conn, func(o rawOutbound) bool {
		return o.Type == proto.OutboundTypeError
	})
	if out.Error == nil {
		t.Fatalf("error frame without payload")
	}
	return out.Error
}

// join sends a plain join and waits for the history that completes it.
func join(t *testing.T, ctx context.Context, conn *websocket.Conn, identity string) proto.EventHistory {
	t.Helper()

	send(t, ctx, conn, proto.InboundTypeJoin, proto.JoinData{Identity: identity})
	var history proto.EventHistory
	decodeData(t, readEvent(t, ctx, conn, "history"), &history)
	return history
}

func decodeData(t *testing.T, out rawOutbound, v any) {
	t.Helper()
	if err := json.Unmarshal(out.Data, v); err != nil {
		t.Fatalf("decode %s data: %v", out.Event, err)
	}
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
