package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rentchat/internal/httpjson"
	"rentchat/internal/user"
)

const requestTimeout = 10 * time.Second

// Handler serves the REST side of chat. Writes are also emitted to the hub so
// connected clients see messages and read receipts sent over HTTP.
type Handler struct {
	resolver *Resolver
	svc      *MessageService
	hub      *Hub
	metrics  *Metrics
	logger   *slog.Logger
}

func NewHandler(resolver *Resolver, svc *MessageService, hub *Hub, metrics *Metrics, logger *slog.Logger) *Handler {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{resolver: resolver, svc: svc, hub: hub, metrics: metrics, logger: logger}
}

// Routes mounts the chat endpoints. Callers wrap it with the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/conversations", h.StartConversation)
	r.Get("/conversations", h.ListConversations)
	r.Get("/conversations/{conversationID}/messages", h.GetChatHistory)
	r.Put("/conversations/{conversationID}/read", h.MarkRead)
	r.Post("/messages", h.SendMessage)
}

func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req StartConversationRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	conv, err := h.resolver.Resolve(ctx, id.UserID, req.OwnerID, req.ListingID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "conversation": conv})
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	convs, err := h.svc.Conversations(ctx, id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "conversations": convs})
}

func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msgs, err := h.svc.ListMessages(ctx, chi.URLParam(r, "conversationID"), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "messages": msgs})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	res, err := h.svc.MarkRead(ctx, chi.URLParam(r, "conversationID"), id.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	convID := res.ConversationID
	if err := h.hub.Emit(convID, EventMessagesRead, messagesReadEvent{ConversationID: convID, UserID: id.UserID}, id.UserID); err != nil {
		h.logger.Warn("chat.emit_failed", "event", EventMessagesRead, "conversation_id", convID, "err", err)
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "message": "Messages marked as read"})
}

// SendMessage is the HTTP fallback for the sendMessage event.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	msg, err := h.svc.Send(ctx, id.UserID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.metrics.MessagesSent.WithLabelValues(TransportHTTP).Inc()
	h.logger.Info("chat.message.sent", "conversation_id", msg.ConversationID, "message_id", msg.ID, "user_id", id.UserID, "transport", TransportHTTP)

	if err := h.hub.Emit(msg.ConversationID, EventReceiveMessage, msg, ""); err != nil {
		h.logger.Warn("chat.emit_failed", "event", EventReceiveMessage, "conversation_id", msg.ConversationID, "err", err)
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (user.Identity, bool) {
	id, ok := user.IdentityFrom(r.Context())
	if !ok {
		httpjson.Error(w, http.StatusUnauthorized, "No authentication token, access denied")
	}
	return id, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if msg, ok := ClientMessage(err); ok {
		httpjson.Error(w, HTTPStatus(err), msg)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.Warn("chat.request_timeout", "path", r.URL.Path, "err", err)
	} else {
		h.logger.Error("chat.request_failed", "path", r.URL.Path, "err", err)
	}
	httpjson.Error(w, http.StatusInternalServerError, "Internal server error")
}
