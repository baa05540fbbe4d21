package chat

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"rentchat/internal/db"
)

var mongoDBSeq atomic.Int64

// newTestMongoStore uses a throwaway database per call.
func newTestMongoStore(t *testing.T) Store {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URL")
	if uri == "" {
		t.Skip("TEST_MONGO_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("rentchat_test_%d_%d", time.Now().UnixNano(), mongoDBSeq.Add(1))
	m, err := db.NewMongo(ctx, uri, name)
	if err != nil {
		t.Fatalf("NewMongo: %v", err)
	}
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer ccancel()
		_ = m.DB.Drop(cctx)
		_ = m.Close(cctx)
	})

	st := NewMongoStore(m.DB)
	if err := st.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes: %v", err)
	}
	return st
}

func TestMongoStore(t *testing.T) {
	if os.Getenv("TEST_MONGO_URL") == "" {
		t.Skip("TEST_MONGO_URL not set")
	}
	runStoreSuite(t, newTestMongoStore)
}

func TestMongoStore_ConcurrentResolve(t *testing.T) {
	st := newTestMongoStore(t)
	f := newFixture(t)
	r := NewResolver(st, f.users, f.listings)

	ids := resolveConcurrently(t, r, 16)
	if len(ids) != 1 {
		t.Fatalf("got %d distinct conversations: %v", len(ids), ids)
	}
}
