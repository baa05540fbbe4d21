package chat

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"rentchat/internal/middleware"
	"rentchat/internal/user"
)

const testJWTSecret = "chat-test-secret"

type testServer struct {
	*fixture
	srv    *httptest.Server
	tokens *user.TokenService
}

func newTestServer(t *testing.T, cfg GatewayConfig) *testServer {
	t.Helper()

	f := newFixture(t)
	tokens := user.NewTokenService(f.users, testJWTSecret, "rentchat", time.Hour)
	auth := middleware.NewAuthMiddleware(tokens, f.logger)

	gw := NewGateway(f.hub, f.svc, cfg, f.metrics, f.logger)
	h := NewHandler(f.resolver, f.svc, f.hub, f.metrics, f.logger)

	r := chi.NewRouter()
	r.With(auth.HandleHandshake).Get("/ws", gw.ServeWS)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Handle)
		h.Routes(r)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{fixture: f, srv: srv, tokens: tokens}
}

func (ts *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	u, err := ts.users.GetUser(t.Context(), userID)
	if err != nil {
		u = user.User{ID: userID}
	}
	tok, _, err := ts.tokens.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

// do performs a REST call as userID; an empty userID sends no token.
func (ts *testServer) do(t *testing.T, method, path, userID string, body any) (int, map[string]any) {
	t.Helper()

	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T, userID string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws?token=" + ts.token(t, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial as %s: %v (status %d)", userID, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{conn: conn}
}

func (c *wsClient) emit(t *testing.T, event string, data any) {
	t.Helper()
	if err := c.conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func (c *wsClient) next(t *testing.T) wsFrame {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f wsFrame
	if err := c.conn.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

// expect reads the next frame and requires it to be event, decoding data into dst.
func (c *wsClient) expect(t *testing.T, event string, dst any) {
	t.Helper()
	f := c.next(t)
	if f.Event != event {
		t.Fatalf("event=%s data=%s want %s", f.Event, f.Data, event)
	}
	if dst != nil {
		if err := json.Unmarshal(f.Data, dst); err != nil {
			t.Fatalf("decode %s: %v", event, err)
		}
	}
}

func (c *wsClient) expectError(t *testing.T, message string) {
	t.Helper()
	var e errorEvent
	c.expect(t, EventError, &e)
	if e.Message != message {
		t.Fatalf("error message=%q want %q", e.Message, message)
	}
}

func (c *wsClient) join(t *testing.T, convID string) {
	t.Helper()
	c.emit(t, EventJoinConversation, convID)
	var ack conversationRef
	c.expect(t, EventJoinedConversation, &ack)
	if ack.ConversationID != convID {
		t.Fatalf("ack=%+v", ack)
	}
}

// drained round-trips an unknown event; any frame queued before the reply fails the test.
func (c *wsClient) drained(t *testing.T) {
	t.Helper()
	c.emit(t, "sync", nil)
	c.expectError(t, "Unknown event: sync")
}
