package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"rentchat/internal/ids"
	"rentchat/internal/listing"
	"rentchat/internal/user"
)

// MaxMessageLength bounds message text in characters.
const MaxMessageLength = 4000

// MessageService owns message persistence, read tracking and membership checks.
// The WebSocket gateway and the REST handler both go through it.
type MessageService struct {
	store Store
	pop   *populator
	now   func() time.Time
}

func NewMessageService(store Store, users user.Directory, listings listing.Directory) *MessageService {
	return &MessageService{
		store: store,
		pop:   &populator{users: users, listings: listings},
		now:   utcNow,
	}
}

// Authorize loads the conversation and checks that userID participates in it.
func (s *MessageService) Authorize(ctx context.Context, conversationID, userID string) (Conversation, error) {
	const op = "chat.MessageService.Authorize"

	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Conversation{}, invalid(op, "conversationId is required")
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return Conversation{}, unauthorized(op)
	}
	return conv, nil
}

// Send stores a message from senderID and refreshes the conversation summary.
// The two writes are independent; the summary only moves forward in time.
func (s *MessageService) Send(ctx context.Context, senderID string, req SendMessageRequest) (MessageView, error) {
	const op = "chat.MessageService.Send"

	conv, err := s.Authorize(ctx, req.ConversationID, senderID)
	if err != nil {
		return MessageView{}, err
	}

	text := strings.TrimSpace(req.MessageText)
	if text == "" {
		return MessageView{}, invalid(op, "Message text is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return MessageView{}, invalid(op, "Message text is too long")
	}

	receiverID := conv.Other(senderID)
	if r := strings.TrimSpace(req.ReceiverID); r != "" && r != receiverID {
		return MessageView{}, invalid(op, "Invalid receiver for this conversation")
	}

	now := s.now()
	id, err := ids.New(now)
	if err != nil {
		return MessageView{}, err
	}
	msg := Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
		CreatedAt:      now,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return MessageView{}, err
	}
	if err := s.store.TouchConversation(ctx, conv.ID, text, now); err != nil {
		return MessageView{}, err
	}

	return s.pop.message(ctx, newPopulateCache(), msg)
}

// ListMessages returns the conversation history oldest first.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, requesterID string) ([]MessageView, error) {
	conv, err := s.Authorize(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	pc := newPopulateCache()
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v, err := s.pop.message(ctx, pc, m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadResult reports a MarkRead: the conversation it applied to and how many
// messages changed state.
type ReadResult struct {
	ConversationID string
	Marked         int64
}

// MarkRead flips every unread message addressed to requesterID. Idempotent.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, requesterID string) (ReadResult, error) {
	conv, err := s.Authorize(ctx, conversationID, requesterID)
	if err != nil {
		return ReadResult{}, err
	}
	n, err := s.store.MarkRead(ctx, conv.ID, requesterID)
	if err != nil {
		return ReadResult{}, err
	}
	return ReadResult{ConversationID: conv.ID, Marked: n}, nil
}

// Conversations lists userID's conversations, most recently active first, each with
// the number of unread messages addressed to userID.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	pc := newPopulateCache()
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		v, err := s.pop.conversation(ctx, pc, c)
		if err != nil {
			return nil, err
		}
		n := unread[c.ID]
		v.UnreadCount = &n
		out = append(out, v)
	}
	return out, nil
}
