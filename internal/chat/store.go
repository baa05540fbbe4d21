package chat

import (
	"context"
	"time"
)

// Store persists conversations and messages.
//
// Requirements:
//   - at most one conversation per (unordered participant pair, listing); a duplicate
//     InsertConversation fails with ErrConflict
//   - ListMessages ordered by (created_at, id) ascending
//   - MarkRead only flips unread -> read
//   - TouchConversation never moves the summary backwards in time
type Store interface {
	FindConversation(ctx context.Context, a, b, listingID string) (Conversation, error)
	InsertConversation(ctx context.Context, c Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	TouchConversation(ctx context.Context, id, lastMessage string, at time.Time) error

	InsertMessage(ctx context.Context, m Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error)
	UnreadCounts(ctx context.Context, receiverID string) (map[string]int64, error)

	Ping(ctx context.Context) error
	Close() error
}
