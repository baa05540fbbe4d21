package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"rentchat/internal/config"
	"rentchat/internal/listing"
	"rentchat/internal/seed"
	"rentchat/internal/user"
)

type conversationResponse struct {
	Success      bool `json:"success"`
	Conversation struct {
		ID string `json:"_id"`
	} `json:"conversation"`
	Message string `json:"message"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type counters struct {
	pairs    atomic.Int64
	failed   atomic.Int64
	sent     atomic.Int64
	received atomic.Int64
}

type runner struct {
	base     string
	wsURL    string
	msgCount int
	interval time.Duration
	tokens   *user.TokenService
	log      *slog.Logger
	stats    *counters
}

func main() {
	base := flag.String("base", "http://localhost:8001", "server base url")
	seedPath := flag.String("seed", "testdata/seed.json", "seed file the server was started with")
	msgCount := flag.Int("messages", 20, "messages per user")
	interval := flag.Duration("interval", 10*time.Millisecond, "delay between sends")
	flag.Parse()

	log := config.NewLogger(config.EnvString("LOG_LEVEL", "info"), "text")

	s, err := seed.Load(*seedPath)
	if err != nil {
		log.Error("loadtest.seed_failed", "err", err)
		os.Exit(1)
	}
	users, _ := s.Memory()
	// Tokens must be signed the same way the server verifies them.
	tokens := user.NewTokenService(users,
		config.EnvString("JWT_SECRET", ""),
		config.EnvString("JWT_ISSUER", ""),
		time.Hour)

	r := &runner{
		base:     strings.TrimRight(*base, "/"),
		wsURL:    toWS(*base) + "/ws",
		msgCount: *msgCount,
		interval: *interval,
		tokens:   tokens,
		log:      log,
		stats:    &counters{},
	}

	start := time.Now()
	var wg sync.WaitGroup
	// Every customer opens a conversation about every listing.
	for _, customer := range s.Customers() {
		for _, l := range s.Listings {
			wg.Add(1)
			go func(c user.User, l listing.Listing) {
				defer wg.Done()
				r.runPair(c, l)
			}(customer, l)
		}
	}
	wg.Wait()

	log.Info("loadtest.done",
		"pairs", r.stats.pairs.Load(),
		"failed", r.stats.failed.Load(),
		"sent", r.stats.sent.Load(),
		"received", r.stats.received.Load(),
		"elapsed", time.Since(start).String())
	if r.stats.failed.Load() > 0 {
		os.Exit(1)
	}
}

func toWS(base string) string {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return base
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (r *runner) runPair(customer user.User, l listing.Listing) {
	r.stats.pairs.Add(1)
	owner := user.User{ID: l.OwnerID, Role: user.RoleOwner}

	tokenC, _, err := r.tokens.Issue(customer)
	if err != nil {
		r.fail("token", customer.ID, err)
		return
	}
	tokenO, _, err := r.tokens.Issue(owner)
	if err != nil {
		r.fail("token", owner.ID, err)
		return
	}

	// 1. Customer opens the conversation over REST
	convID, err := r.createConversation(tokenC, l)
	if err != nil {
		r.fail("conversation", customer.ID, err)
		return
	}

	// 2. Both sides join over WebSocket before anyone sends
	connC, err := r.dialAndJoin(tokenC, convID)
	if err != nil {
		r.fail("join", customer.ID, err)
		return
	}
	defer connC.Close()
	connO, err := r.dialAndJoin(tokenO, convID)
	if err != nil {
		r.fail("join", owner.ID, err)
		return
	}
	defer connO.Close()

	// 3. Exchange messages; each side sees both its own and its peer's
	expected := 2 * r.msgCount
	var wg sync.WaitGroup
	wg.Add(2)
	go r.chat(&wg, connC, convID, customer.ID, owner.ID, expected)
	go r.chat(&wg, connO, convID, owner.ID, customer.ID, expected)
	wg.Wait()
}

func (r *runner) createConversation(token string, l listing.Listing) (string, error) {
	body, _ := json.Marshal(map[string]string{"listingId": l.ID, "ownerId": l.OwnerID})
	req, err := http.NewRequest(http.MethodPost, r.base+"/api/conversations", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var data conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !data.Success {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, data.Message)
	}
	return data.Conversation.ID, nil
}

func (r *runner) dialAndJoin(token, convID string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(r.wsURL+"?token="+url.QueryEscape(token), nil)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(map[string]any{"event": "joinConversation", "data": convID}); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return nil, err
		}
		switch f.Event {
		case "joinedConversation":
			_ = conn.SetReadDeadline(time.Time{})
			return conn, nil
		case "error":
			conn.Close()
			return nil, fmt.Errorf("join rejected: %s", f.Data)
		}
	}
}

func (r *runner) chat(wg *sync.WaitGroup, conn *websocket.Conn, convID, self, peer string, expected int) {
	defer wg.Done()

	done := make(chan int, 1)
	go func() {
		got := 0
		deadline := time.Now().Add(time.Duration(r.msgCount)*r.interval + 15*time.Second)
		_ = conn.SetReadDeadline(deadline)
		for got < expected {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				break
			}
			switch f.Event {
			case "receiveMessage":
				got++
			case "error":
				r.log.Warn("loadtest.server_error", "user", self, "data", string(f.Data))
			}
		}
		done <- got
	}()

	for i := 0; i < r.msgCount; i++ {
		msg := map[string]any{
			"event": "sendMessage",
			"data": map[string]string{
				"conversationId": convID,
				"receiverId":     peer,
				"messageText":    fmt.Sprintf("loadtest %d from %s", i, self),
			},
		}
		if err := conn.WriteJSON(msg); err != nil {
			r.fail("send", self, err)
			break
		}
		r.stats.sent.Add(1)
		time.Sleep(r.interval)
	}

	got := <-done
	r.stats.received.Add(int64(got))
	if got < expected {
		r.fail("receive", self, fmt.Errorf("got %d of %d", got, expected))
		return
	}
	r.log.Debug("loadtest.user_done", "user", self, "conversation", convID, "received", got)
}

func (r *runner) fail(step, userID string, err error) {
	r.stats.failed.Add(1)
	r.log.Warn("loadtest.failed", "step", step, "user", userID, "err", err)
}
