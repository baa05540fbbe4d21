package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rentchat/internal/httpjson"
	"rentchat/internal/user"
)

type GatewayConfig struct {
	SendQueue      int
	RateEvents     int
	RateWindow     time.Duration
	OpTimeout      time.Duration
	AllowedOrigins []string
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.RateEvents <= 0 {
		c.RateEvents = defaultRateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	return c
}

// Gateway upgrades authenticated requests and dispatches channel events to the
// message service and the hub.
type Gateway struct {
	hub      *Hub
	svc      *MessageService
	cfg      GatewayConfig
	upgrader websocket.Upgrader
	metrics  *Metrics
	logger   *slog.Logger
}

func NewGateway(hub *Hub, svc *MessageService, cfg GatewayConfig, metrics *Metrics, logger *slog.Logger) *Gateway {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		hub:     hub,
		svc:     svc,
		cfg:     cfg.withDefaults(),
		metrics: metrics,
		logger:  logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	// Same-origin is always allowed.
	return strings.EqualFold(u.Host, r.Host)
}

// ServeWS expects the identity attached by the handshake middleware.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := user.IdentityFrom(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "Authentication error")
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("ws.upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := newClient(conn, id, g.cfg.SendQueue, NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow))
	if !g.hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	g.logger.Info("ws.connect", "conn_id", client.ID, "user_id", id.UserID)

	// The request context ends when this handler returns; keep its values only.
	ctx := context.WithoutCancel(r.Context())

	go client.writePump()
	go func() {
		client.readPump(ctx, g.hub, g.handle)
		g.logger.Info("ws.disconnect", "conn_id", client.ID, "user_id", id.UserID)
	}()
}

func (g *Gateway) handle(ctx context.Context, c *Client, raw []byte) {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
		g.metrics.Events.WithLabelValues("invalid", "error").Inc()
		g.sendError(c, "Invalid payload")
		return
	}

	if !c.limiter.Allow(time.Now()) {
		g.metrics.Events.WithLabelValues("rate_limited", "error").Inc()
		g.sendError(c, "Too many events")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, g.cfg.OpTimeout)
	defer cancel()

	var err error
	switch in.Event {
	case EventJoinConversation:
		err = g.joinConversation(opCtx, c, in.Data)
	case EventLeaveConversation:
		err = g.leaveConversation(c, in.Data)
	case EventSendMessage:
		err = g.sendMessage(opCtx, c, in.Data)
	case EventMarkAsRead:
		err = g.markAsRead(opCtx, c, in.Data)
	case EventTyping:
		err = g.typing(c, in.Data)
	default:
		g.metrics.Events.WithLabelValues("unknown", "error").Inc()
		g.sendError(c, "Unknown event: "+in.Event)
		return
	}

	if err != nil {
		g.metrics.Events.WithLabelValues(in.Event, "error").Inc()
		g.reportError(c, in.Event, err)
		return
	}
	g.metrics.Events.WithLabelValues(in.Event, "ok").Inc()
}

func (g *Gateway) joinConversation(ctx context.Context, c *Client, data json.RawMessage) error {
	convID, err := parseConversationRef(data)
	if err != nil {
		return err
	}
	if _, err := g.svc.Authorize(ctx, convID, c.UserID()); err != nil {
		return err
	}

	ack, err := encodeEvent(EventJoinedConversation, conversationRef{ConversationID: convID})
	if err != nil {
		return err
	}
	g.hub.Join(c, convID, ack)
	g.logger.Debug("ws.join", "conn_id", c.ID, "user_id", c.UserID(), "conversation_id", convID)
	return nil
}

func (g *Gateway) leaveConversation(c *Client, data json.RawMessage) error {
	convID, err := parseConversationRef(data)
	if err != nil {
		return err
	}
	g.hub.Leave(c, convID)
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var req SendMessageRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}

	msg, err := g.svc.Send(ctx, c.UserID(), req)
	if err != nil {
		return err
	}
	g.metrics.MessagesSent.WithLabelValues(TransportWS).Inc()
	g.logger.Info("chat.message.sent", "conversation_id", msg.ConversationID, "message_id", msg.ID, "user_id", c.UserID(), "transport", TransportWS)

	return g.hub.Emit(msg.ConversationID, EventReceiveMessage, msg, "")
}

func (g *Gateway) markAsRead(ctx context.Context, c *Client, data json.RawMessage) error {
	convID, err := parseConversationRef(data)
	if err != nil {
		return err
	}

	res, err := g.svc.MarkRead(ctx, convID, c.UserID())
	if err != nil {
		return err
	}
	g.logger.Debug("chat.messages.read", "conversation_id", res.ConversationID, "user_id", c.UserID(), "count", res.Marked)

	return g.hub.Emit(res.ConversationID, EventMessagesRead,
		messagesReadEvent{ConversationID: res.ConversationID, UserID: c.UserID()}, c.UserID())
}

// typing is relayed only when the connection is in the room; nothing is stored.
func (g *Gateway) typing(c *Client, data json.RawMessage) error {
	var req typingRequest
	if err := decodePayload(data, &req); err != nil {
		return err
	}
	req.ConversationID = strings.TrimSpace(req.ConversationID)
	if req.ConversationID == "" {
		return errInvalidPayload
	}

	payload, err := encodeEvent(EventUserTyping, userTypingEvent{
		ConversationID: req.ConversationID,
		UserID:         c.UserID(),
		IsTyping:       req.IsTyping,
	})
	if err != nil {
		return err
	}
	g.hub.Broadcast(Broadcast{Room: req.ConversationID, Payload: payload, ExcludeUser: c.UserID(), Sender: c})
	return nil
}

var failureMessages = map[string]string{
	EventJoinConversation:  "Failed to join conversation",
	EventLeaveConversation: "Failed to leave conversation",
	EventSendMessage:       "Failed to send message",
	EventMarkAsRead:        "Failed to mark messages as read",
	EventTyping:            "Failed to send typing status",
}

// reportError turns a failed event into a private error frame. Only the offending
// connection hears about it.
func (g *Gateway) reportError(c *Client, event string, err error) {
	if errors.Is(err, errInvalidPayload) {
		g.sendError(c, "Invalid payload")
		return
	}
	if msg, ok := ClientMessage(err); ok {
		g.sendError(c, msg)
		return
	}

	g.logger.Error("ws.event_failed", "event", event, "conn_id", c.ID, "user_id", c.UserID(), "err", err)
	g.sendError(c, failureMessages[event])
}

func (g *Gateway) sendError(c *Client, message string) {
	payload, err := encodeEvent(EventError, errorEvent{Message: message})
	if err != nil {
		return
	}
	g.hub.Send(c, payload)
}
