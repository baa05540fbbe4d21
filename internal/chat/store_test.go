package chat

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"rentchat/internal/ids"
)

// runStoreSuite exercises the Store contract. newStore must return an empty store.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	newConv := func(t *testing.T, a, b, listingID string, at time.Time) Conversation {
		t.Helper()
		return Conversation{
			ID:           ids.MustNew(at),
			Participants: [2]string{a, b},
			ListingID:    listingID,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
	}

	t.Run("unique unordered pair per listing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := newConv(t, "c1", "o1", "l1", base)
		if err := s.InsertConversation(ctx, c); err != nil {
			t.Fatalf("insert: %v", err)
		}

		dup := newConv(t, "o1", "c1", "l1", base)
		if err := s.InsertConversation(ctx, dup); !IsConflict(err) {
			t.Fatalf("reversed pair insert err=%v want conflict", err)
		}

		other := newConv(t, "c1", "o1", "l2", base)
		if err := s.InsertConversation(ctx, other); err != nil {
			t.Fatalf("different listing must be allowed: %v", err)
		}

		got, err := s.FindConversation(ctx, "o1", "c1", "l1")
		if err != nil {
			t.Fatalf("find reversed: %v", err)
		}
		if got.ID != c.ID || got.Participants != c.Participants {
			t.Fatalf("got=%+v want=%+v", got, c)
		}

		if _, err := s.FindConversation(ctx, "c1", "o1", "l3"); !IsNotFound(err) {
			t.Fatalf("find missing err=%v", err)
		}
		if _, err := s.GetConversation(ctx, "missing"); !IsNotFound(err) {
			t.Fatalf("get missing err=%v", err)
		}
	})

	t.Run("separator in ids does not alias another triple", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := newConv(t, "x|y", "z", "L1", base)
		if err := s.InsertConversation(ctx, first); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if _, err := s.FindConversation(ctx, "x", "y", "z|L1"); !IsNotFound(err) {
			t.Fatalf("find other triple err=%v want not found", err)
		}

		second := newConv(t, "x", "y", "z|L1", base.Add(time.Millisecond))
		if err := s.InsertConversation(ctx, second); err != nil {
			t.Fatalf("insert other triple: %v", err)
		}
		got, err := s.FindConversation(ctx, "y", "x", "z|L1")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.ID != second.ID || got.Participants != second.Participants {
			t.Fatalf("got=%+v want=%+v", got, second)
		}
	})

	t.Run("list conversations by activity", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		older := newConv(t, "c1", "o1", "l1", base)
		newer := newConv(t, "c1", "o1", "l2", base.Add(time.Minute))
		foreign := newConv(t, "x", "y", "l1", base)
		for _, c := range []Conversation{older, newer, foreign} {
			if err := s.InsertConversation(ctx, c); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		list, err := s.ListConversations(ctx, "c1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
			t.Fatalf("list=%+v", list)
		}

		if err := s.TouchConversation(ctx, older.ID, "hello", base.Add(2*time.Minute)); err != nil {
			t.Fatalf("touch: %v", err)
		}
		list, err = s.ListConversations(ctx, "o1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].ID != older.ID || list[0].LastMessage != "hello" {
			t.Fatalf("after touch list=%+v", list)
		}
	})

	t.Run("touch never moves backwards", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := newConv(t, "c1", "o1", "l1", base)
		if err := s.InsertConversation(ctx, c); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := s.TouchConversation(ctx, c.ID, "second", base.Add(2*time.Second)); err != nil {
			t.Fatalf("touch: %v", err)
		}
		if err := s.TouchConversation(ctx, c.ID, "first", base.Add(time.Second)); err != nil {
			t.Fatalf("late touch: %v", err)
		}

		got, err := s.GetConversation(ctx, c.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.LastMessage != "second" || !got.LastMessageAt.Equal(base.Add(2*time.Second)) {
			t.Fatalf("summary=%q at %v", got.LastMessage, got.LastMessageAt)
		}
	})

	t.Run("messages ordered and read monotonic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c := newConv(t, "c1", "o1", "l1", base)
		if err := s.InsertConversation(ctx, c); err != nil {
			t.Fatalf("insert: %v", err)
		}

		// Same timestamp for the first two; id breaks the tie.
		stamps := []time.Time{base, base, base.Add(time.Millisecond), base.Add(time.Second)}
		var inserted []Message
		for i, at := range stamps {
			m := Message{
				ID:             ids.MustNew(at),
				ConversationID: c.ID,
				SenderID:       "c1",
				ReceiverID:     "o1",
				Text:           fmt.Sprintf("m%d", i),
				CreatedAt:      at,
			}
			if i == 3 {
				m.SenderID, m.ReceiverID = "o1", "c1"
			}
			inserted = append(inserted, m)
			if err := s.InsertMessage(ctx, m); err != nil {
				t.Fatalf("insert message: %v", err)
			}
		}

		sort.Slice(inserted, func(i, j int) bool { return messageLess(inserted[i], inserted[j]) })
		want := make([]string, 0, len(inserted))
		for _, m := range inserted {
			want = append(want, m.ID)
		}

		msgs, err := s.ListMessages(ctx, c.ID)
		if err != nil {
			t.Fatalf("list messages: %v", err)
		}
		if len(msgs) != len(want) {
			t.Fatalf("len=%d want=%d", len(msgs), len(want))
		}
		for i := range msgs {
			if msgs[i].ID != want[i] {
				t.Fatalf("position %d: got %s want %s", i, msgs[i].ID, want[i])
			}
			if i > 0 && msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
				t.Fatalf("order violated at %d", i)
			}
		}

		counts, err := s.UnreadCounts(ctx, "o1")
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		if counts[c.ID] != 3 {
			t.Fatalf("unread for o1=%d want=3", counts[c.ID])
		}

		n, err := s.MarkRead(ctx, c.ID, "o1")
		if err != nil || n != 3 {
			t.Fatalf("mark read n=%d err=%v", n, err)
		}
		n, err = s.MarkRead(ctx, c.ID, "o1")
		if err != nil || n != 0 {
			t.Fatalf("second mark read n=%d err=%v", n, err)
		}

		msgs, err = s.ListMessages(ctx, c.ID)
		if err != nil {
			t.Fatalf("list messages: %v", err)
		}
		for _, m := range msgs {
			if m.ReceiverID == "o1" && !m.Read {
				t.Fatalf("message %s addressed to o1 still unread", m.ID)
			}
			if m.ReceiverID == "c1" && m.Read {
				t.Fatalf("message %s addressed to c1 marked read", m.ID)
			}
		}

		counts, err = s.UnreadCounts(ctx, "c1")
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		if counts[c.ID] != 1 {
			t.Fatalf("unread for c1=%d want=1", counts[c.ID])
		}
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_InsertMessageUnknownConversation(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	err := s.InsertMessage(context.Background(), Message{ID: "m1", ConversationID: "nope", CreatedAt: time.Now()})
	if !IsNotFound(err) {
		t.Fatalf("err=%v want not found", err)
	}
}
