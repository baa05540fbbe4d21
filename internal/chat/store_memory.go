package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for dev mode and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	byPair        map[pairListing]string
	messages      map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]Conversation),
		byPair:        make(map[pairListing]string),
		messages:      make(map[string][]Message),
	}
}

// pairListing is the unordered participant pair plus listing, lo <= hi.
type pairListing struct {
	lo, hi, listing string
}

func memoryPairKey(a, b, listingID string) pairListing {
	if b < a {
		a, b = b, a
	}
	return pairListing{lo: a, hi: b, listing: listingID}
}

func (s *MemoryStore) FindConversation(ctx context.Context, a, b, listingID string) (Conversation, error) {
	const op = "chat.MemoryStore.FindConversation"
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[memoryPairKey(a, b, listingID)]
	if !ok {
		return Conversation{}, notFound(op, "Conversation not found")
	}
	return s.conversations[id], nil
}

func (s *MemoryStore) InsertConversation(ctx context.Context, c Conversation) error {
	const op = "chat.MemoryStore.InsertConversation"
	if err := ctx.Err(); err != nil {
		return err
	}

	key := memoryPairKey(c.Participants[0], c.Participants[1], c.ListingID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byPair[key]; ok {
		return OpError{Op: op, Kind: ErrConflict, Msg: "conversation already exists"}
	}
	if _, ok := s.conversations[c.ID]; ok {
		return OpError{Op: op, Kind: ErrConflict, Msg: "duplicate id"}
	}
	s.conversations[c.ID] = c
	s.byPair[key] = c.ID
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	const op = "chat.MemoryStore.GetConversation"
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, notFound(op, "Conversation not found")
	}
	return c, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]Conversation, 0)
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) TouchConversation(ctx context.Context, id, lastMessage string, at time.Time) error {
	const op = "chat.MemoryStore.TouchConversation"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return notFound(op, "Conversation not found")
	}
	if !c.LastMessageAt.IsZero() && at.Before(c.LastMessageAt) {
		return nil
	}
	c.LastMessage = lastMessage
	c.LastMessageAt = at
	c.UpdatedAt = at
	s.conversations[id] = c
	return nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, m Message) error {
	const op = "chat.MemoryStore.InsertMessage"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[m.ConversationID]; !ok {
		return notFound(op, "Conversation not found")
	}

	msgs := s.messages[m.ConversationID]
	// Keep (created_at, id) order; appends are almost always at the tail.
	i := sort.Search(len(msgs), func(i int) bool { return messageLess(m, msgs[i]) })
	msgs = append(msgs, Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	s.messages[m.ConversationID] = msgs
	return nil
}

func messageLess(a, b Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return strings.Compare(a.ID, b.ID) < 0
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ReceiverID == receiverID && !msgs[i].Read {
			msgs[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UnreadCounts(ctx context.Context, receiverID string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64)
	for convID, msgs := range s.messages {
		for _, m := range msgs {
			if m.ReceiverID == receiverID && !m.Read {
				out[convID]++
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }
