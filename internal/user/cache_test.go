package user

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type countingDirectory struct {
	Directory
	calls atomic.Int64
}

func (c *countingDirectory) GetUser(ctx context.Context, id string) (User, error) {
	c.calls.Add(1)
	return c.Directory.GetUser(ctx, id)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	mem := NewMemoryDirectory(User{ID: "cache-u1", Name: "Alice", Role: RoleCustomer})
	backing := &countingDirectory{Directory: mem}
	cache := NewCachedDirectory(backing, rdb, time.Minute, nil)
	cache.prefix = "rentchat:test:" + t.Name() + ":"
	t.Cleanup(func() { _ = cache.Invalidate(context.Background(), "cache-u1") })

	for i := 0; i < 3; i++ {
		u, err := cache.GetUser(ctx, "cache-u1")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if u.Name != "Alice" {
			t.Fatalf("user=%+v", u)
		}
	}
	if got := backing.calls.Load(); got != 1 {
		t.Fatalf("backing calls=%d want=1", got)
	}

	mem.Put(User{ID: "cache-u1", Name: "Alicia", Role: RoleCustomer})
	if err := cache.Invalidate(ctx, "cache-u1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	u, err := cache.GetUser(ctx, "cache-u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "Alicia" {
		t.Fatalf("after invalidate user=%+v", u)
	}
}

func TestCachedDirectory_MissNotCached(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	mem := NewMemoryDirectory()
	cache := NewCachedDirectory(mem, rdb, time.Minute, nil)
	cache.prefix = "rentchat:test:" + t.Name() + ":"
	t.Cleanup(func() { _ = cache.Invalidate(context.Background(), "late") })

	if _, err := cache.GetUser(ctx, "late"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrUserNotFound)
	}
	mem.Put(User{ID: "late", Name: "Late"})
	if _, err := cache.GetUser(ctx, "late"); err != nil {
		t.Fatalf("user created after a miss should resolve: %v", err)
	}
}

func TestCachedDirectory_RedisDownFallsThrough(t *testing.T) {
	t.Parallel()

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cache := NewCachedDirectory(NewMemoryDirectory(User{ID: "u1", Name: "Alice"}), rdb, time.Minute, nil)
	u, err := cache.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "Alice" {
		t.Fatalf("user=%+v", u)
	}
}
