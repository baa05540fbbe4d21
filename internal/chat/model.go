package chat

import (
	"strconv"
	"time"

	"rentchat/internal/listing"
	"rentchat/internal/user"
)

// ---------------------------------------------
// Database Models
// ---------------------------------------------

// Conversation pairs exactly two users around one listing.
// Participants keeps creation order: customer first, owner second.
type Conversation struct {
	ID            string
	Participants  [2]string
	ListingID     string
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participants[0] == userID || c.Participants[1] == userID)
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.Participants[0] == userID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// PairKey is the order-independent key of the participant pair. The lower id is
// length-prefixed so distinct pairs never share a key, whatever the ids contain.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + "|" + b
}

// Message is immutable except for Read, which only ever goes false -> true.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Text           string
	Read           bool
	CreatedAt      time.Time
}

// ---------------------------------------------
// API Models
// ---------------------------------------------

// ConversationView is a conversation populated with participant and listing summaries.
type ConversationView struct {
	ID            string          `json:"_id"`
	Participants  []user.User     `json:"participants"`
	Listing       listing.Listing `json:"listingId"`
	LastMessage   string          `json:"lastMessage"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
	UnreadCount   *int64          `json:"unreadCount,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// MessageView is a message populated with sender and receiver summaries.
type MessageView struct {
	ID             string    `json:"_id"`
	ConversationID string    `json:"conversationId"`
	Sender         user.User `json:"senderId"`
	Receiver       user.User `json:"receiverId"`
	MessageText    string    `json:"messageText"`
	IsRead         bool      `json:"isRead"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ---------------------------------------------
// Real-time Models
// ---------------------------------------------

// Envelope is one WebSocket text frame in either direction.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// SendMessageRequest is the body of POST /api/messages and of the sendMessage event.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
	MessageText    string `json:"messageText"`
}

// StartConversationRequest is the body of POST /api/conversations.
type StartConversationRequest struct {
	ListingID string `json:"listingId"`
	OwnerID   string `json:"ownerId"`
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

type typingRequest struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type messagesReadEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type userTypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type errorEvent struct {
	Message string `json:"message"`
}
