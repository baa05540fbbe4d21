package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"rentchat/internal/listing"
	"rentchat/internal/user"
)

var (
	customer = user.User{ID: "c1", Name: "Casey", Email: "casey@example.com", Role: user.RoleCustomer}
	owner    = user.User{ID: "o1", Name: "Olive", Email: "olive@example.com", Role: user.RoleOwner}
	outsider = user.User{ID: "u2", Name: "Uma", Email: "uma@example.com", Role: user.RoleCustomer}

	loft  = listing.Listing{ID: "l1", OwnerID: "o1", Title: "Sunny loft", Address: "1 Main St", Price: 1500}
	cabin = listing.Listing{ID: "l2", OwnerID: "o1", Title: "Lake cabin", Address: "9 Shore Rd", Price: 900}
)

type fixture struct {
	store    *MemoryStore
	users    *user.MemoryDirectory
	listings *listing.MemoryDirectory
	resolver *Resolver
	svc      *MessageService
	hub      *Hub
	metrics  *Metrics
	logger   *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    NewMemoryStore(),
		users:    user.NewMemoryDirectory(customer, owner, outsider),
		listings: listing.NewMemoryDirectory(loft, cabin),
		metrics:  NewMetrics(nil),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	f.resolver = NewResolver(f.store, f.users, f.listings)
	f.svc = NewMessageService(f.store, f.users, f.listings)
	f.hub = NewHub(f.metrics, f.logger)

	ctx, cancel := context.WithCancel(context.Background())
	go f.hub.Run(ctx)
	t.Cleanup(cancel)
	return f
}

// conversation resolves (customer, owner, loft) and fails the test on error.
func (f *fixture) conversation(t *testing.T) ConversationView {
	t.Helper()
	v, err := f.resolver.Resolve(context.Background(), customer.ID, owner.ID, loft.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return v
}
