package user

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryDirectory(t *testing.T) {
	t.Parallel()

	dir := NewMemoryDirectory(User{ID: "u1", Name: "Alice"})
	ctx := context.Background()

	u, err := dir.GetUser(ctx, "u1")
	if err != nil || u.Name != "Alice" {
		t.Fatalf("GetUser u1: %+v %v", u, err)
	}
	if _, err := dir.GetUser(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrUserNotFound)
	}

	dir.Delete("u1")
	if _, err := dir.GetUser(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("after delete err=%v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := dir.GetUser(cctx, "u1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled ctx err=%v", err)
	}
}
