package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCachePrefix = "rentchat:user:"

// CachedDirectory is a read-through Redis cache in front of another Directory.
// Misses are not cached so a newly created user is visible immediately; a Redis
// failure falls through to the backing directory.
type CachedDirectory struct {
	next   Directory
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedDirectory(next Directory, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl, prefix: defaultCachePrefix, logger: logger}
}

func (c *CachedDirectory) key(id string) string {
	return c.prefix + id
}

func (c *CachedDirectory) GetUser(ctx context.Context, id string) (User, error) {
	raw, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var u User
		if jerr := json.Unmarshal(raw, &u); jerr == nil && u.ID != "" {
			return u, nil
		}
		c.logger.Warn("user.cache.decode_failed", "user_id", id)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("user.cache.get_failed", "user_id", id, "err", err)
	}

	u, err := c.next.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	if raw, err := json.Marshal(u); err == nil {
		if err := c.rdb.Set(ctx, c.key(id), raw, c.ttl).Err(); err != nil {
			c.logger.Warn("user.cache.set_failed", "user_id", id, "err", err)
		}
	}
	return u, nil
}

// Invalidate drops the cached record for id.
func (c *CachedDirectory) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, c.key(id)).Err()
}
