package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentchat/internal/listing"
	"rentchat/internal/user"
)

// populator fills user and listing summaries into API views. Lookups are cached per
// call so a conversation list resolves each user once.
type populator struct {
	users    user.Directory
	listings listing.Directory
}

type populateCache struct {
	users    map[string]user.User
	listings map[string]listing.Listing
}

func newPopulateCache() *populateCache {
	return &populateCache{users: make(map[string]user.User), listings: make(map[string]listing.Listing)}
}

// user returns the summary for id. A missing record renders as {_id} only.
func (p *populator) user(ctx context.Context, pc *populateCache, id string) (user.User, error) {
	if u, ok := pc.users[id]; ok {
		return u, nil
	}
	u, err := p.users.GetUser(ctx, id)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			return user.User{}, fmt.Errorf("populate user %s: %w", id, err)
		}
		u = user.User{ID: id}
	}
	pc.users[id] = u
	return u, nil
}

func (p *populator) listing(ctx context.Context, pc *populateCache, id string) (listing.Listing, error) {
	if l, ok := pc.listings[id]; ok {
		return l, nil
	}
	l, err := p.listings.GetListing(ctx, id)
	if err != nil {
		if !errors.Is(err, listing.ErrListingNotFound) {
			return listing.Listing{}, fmt.Errorf("populate listing %s: %w", id, err)
		}
		l = listing.Listing{ID: id}
	}
	pc.listings[id] = l
	return l, nil
}

func (p *populator) conversation(ctx context.Context, pc *populateCache, c Conversation) (ConversationView, error) {
	v := ConversationView{
		ID:           c.ID,
		Participants: make([]user.User, 0, 2),
		LastMessage:  c.LastMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	for _, id := range c.Participants {
		u, err := p.user(ctx, pc, id)
		if err != nil {
			return ConversationView{}, err
		}
		v.Participants = append(v.Participants, u)
	}

	l, err := p.listing(ctx, pc, c.ListingID)
	if err != nil {
		return ConversationView{}, err
	}
	v.Listing = l

	if !c.LastMessageAt.IsZero() {
		at := c.LastMessageAt
		v.LastMessageAt = &at
	}
	return v, nil
}

func (p *populator) message(ctx context.Context, pc *populateCache, m Message) (MessageView, error) {
	sender, err := p.user(ctx, pc, m.SenderID)
	if err != nil {
		return MessageView{}, err
	}
	receiver, err := p.user(ctx, pc, m.ReceiverID)
	if err != nil {
		return MessageView{}, err
	}
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Receiver:       receiver,
		MessageText:    m.Text,
		IsRead:         m.Read,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// utcNow is truncated to the precision Postgres stores.
func utcNow() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
