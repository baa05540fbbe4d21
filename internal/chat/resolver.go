package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rentchat/internal/ids"
	"rentchat/internal/listing"
	"rentchat/internal/user"
)

// Resolver maps (customer, owner, listing) to the single conversation for that triple.
type Resolver struct {
	store    Store
	listings listing.Directory
	pop      *populator
	now      func() time.Time
}

func NewResolver(store Store, users user.Directory, listings listing.Directory) *Resolver {
	return &Resolver{
		store:    store,
		listings: listings,
		pop:      &populator{users: users, listings: listings},
		now:      utcNow,
	}
}

// Resolve returns the existing conversation for the triple or creates it. Concurrent
// first contacts race on the store's unique key; the loser re-reads the winner.
func (r *Resolver) Resolve(ctx context.Context, customerID, ownerID, listingID string) (ConversationView, error) {
	const op = "chat.Resolver.Resolve"

	customerID = strings.TrimSpace(customerID)
	ownerID = strings.TrimSpace(ownerID)
	listingID = strings.TrimSpace(listingID)

	if listingID == "" || ownerID == "" {
		return ConversationView{}, invalid(op, "listingId and ownerId are required")
	}

	l, err := r.listings.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, listing.ErrListingNotFound) {
			return ConversationView{}, notFound(op, "Listing not found")
		}
		return ConversationView{}, fmt.Errorf("%s: get listing: %w", op, err)
	}
	if l.OwnerID != ownerID {
		return ConversationView{}, invalid(op, "Invalid owner for this listing")
	}
	if customerID == ownerID {
		return ConversationView{}, invalid(op, "Cannot start a conversation with yourself")
	}

	conv, err := r.store.FindConversation(ctx, customerID, ownerID, listingID)
	switch {
	case err == nil:
	case IsNotFound(err):
		conv, err = r.create(ctx, customerID, ownerID, listingID)
		if err != nil {
			return ConversationView{}, err
		}
	default:
		return ConversationView{}, err
	}

	pc := newPopulateCache()
	pc.listings[l.ID] = l
	return r.pop.conversation(ctx, pc, conv)
}

func (r *Resolver) create(ctx context.Context, customerID, ownerID, listingID string) (Conversation, error) {
	now := r.now()
	id, err := ids.New(now)
	if err != nil {
		return Conversation{}, err
	}

	conv := Conversation{
		ID:           id,
		Participants: [2]string{customerID, ownerID},
		ListingID:    listingID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = r.store.InsertConversation(ctx, conv)
	if err == nil {
		return conv, nil
	}
	if !IsConflict(err) {
		return Conversation{}, err
	}
	return r.store.FindConversation(ctx, customerID, ownerID, listingID)
}
