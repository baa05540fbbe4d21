// Package app wires the configured storage backends for the server and the dev tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"rentchat/internal/chat"
	"rentchat/internal/config"
	"rentchat/internal/db"
	"rentchat/internal/listing"
	"rentchat/internal/seed"
	"rentchat/internal/user"
)

// Backends is everything the chat services read from or write to.
type Backends struct {
	Store    chat.Store
	Listings listing.Directory

	// Users is the authoritative directory. The identity gate reads it so a
	// deleted user is rejected on the next request.
	Users user.Directory

	// Profiles serves display lookups (participant names, emails) and may sit
	// behind the Redis cache.
	Profiles user.Directory

	pingers []func(context.Context) error
	closers []func()
}

// OpenBackends connects the store selected by cfg.StoreDriver, applies the seed file
// if one is configured, and fronts Profiles with Redis when REDIS_ADDR is set.
func OpenBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*Backends, error) {
	b := &Backends{}

	var s *seed.Seed
	if cfg.SeedFile != "" {
		loaded, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		s = &loaded
		log.Info("seed.loaded", "file", cfg.SeedFile, "users", len(loaded.Users), "listings", len(loaded.Listings))
	}

	var err error
	switch cfg.StoreDriver {
	case config.DriverMemory:
		b.openMemory(s, log)
	case config.DriverPostgres:
		err = b.openPostgres(ctx, cfg, s, log)
	case config.DriverMongo:
		err = b.openMongo(ctx, cfg, s, log)
	default:
		err = fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Profiles = b.Users
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			b.Close()
			return nil, fmt.Errorf("redis: ping %s: %w", cfg.RedisAddr, err)
		}
		b.closers = append(b.closers, func() { _ = rdb.Close() })
		b.pingers = append(b.pingers, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		b.Profiles = user.NewCachedDirectory(b.Users, rdb, cfg.IdentityCacheTTL, log)
		log.Info("redis.connected", "addr", cfg.RedisAddr, "ttl", cfg.IdentityCacheTTL.String())
	}

	return b, nil
}

func (b *Backends) openMemory(s *seed.Seed, log *slog.Logger) {
	if s != nil {
		b.Users, b.Listings = s.Memory()
	} else {
		b.Users, b.Listings = user.NewMemoryDirectory(), listing.NewMemoryDirectory()
		log.Warn("store.memory.empty_directories", "hint", "set SEED_FILE to load users and listings")
	}
	b.Store = chat.NewMemoryStore()
	log.Info("store.ready", "driver", config.DriverMemory)
}

func (b *Backends) openPostgres(ctx context.Context, cfg config.Config, s *seed.Seed, log *slog.Logger) error {
	database, err := db.NewDatabase(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, database.Close)

	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}
	if s != nil {
		if err := s.ToPostgres(ctx, database.Pool); err != nil {
			return err
		}
	}

	store, err := chat.NewPostgresStore(database.Pool)
	if err != nil {
		return err
	}
	b.Store = store
	b.Users = user.NewRepository(database.Pool)
	b.Listings = listing.NewRepository(database.Pool)
	b.pingers = append(b.pingers, store.Ping)
	log.Info("store.ready", "driver", config.DriverPostgres)
	return nil
}

func (b *Backends) openMongo(ctx context.Context, cfg config.Config, s *seed.Seed, log *slog.Logger) error {
	m, err := db.NewMongo(ctx, cfg.MongoURL, cfg.DBName)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(cctx)
	})

	store := chat.NewMongoStore(m.DB)
	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}
	if s != nil {
		if err := s.ToMongo(ctx, m.DB); err != nil {
			return err
		}
	}

	b.Store = store
	b.Users = user.NewMongoRepository(m.DB)
	b.Listings = listing.NewMongoRepository(m.DB)
	b.pingers = append(b.pingers, m.Ping)
	log.Info("store.ready", "driver", config.DriverMongo, "db", cfg.DBName)
	return nil
}

// Ping checks every connected backend.
func (b *Backends) Ping(ctx context.Context) error {
	var errs []error
	for _, ping := range b.pingers {
		if err := ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases connections in reverse order of opening.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
