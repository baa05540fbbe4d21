package listing

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()

	dir := NewMemoryDirectory(Listing{ID: "l1", OwnerID: "o1", Title: "Loft", Address: "1 Main St", Price: 1200})
	ctx := context.Background()

	l, err := dir.GetListing(ctx, "l1")
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if l.OwnerID != "o1" || l.Title != "Loft" || l.Price != 1200 {
		t.Fatalf("listing=%+v", l)
	}

	if _, err := dir.GetListing(ctx, "nope"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrListingNotFound)
	}
}
