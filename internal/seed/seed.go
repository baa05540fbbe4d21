// Package seed loads users and listings for dev and load testing. The account and
// listing services own these records in production.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rentchat/internal/listing"
	"rentchat/internal/user"
)

type Seed struct {
	Users    []user.User       `json:"users"`
	Listings []listing.Listing `json:"listings"`
}

// Load reads a seed file and checks that every listing owner exists.
func Load(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("seed: %w", err)
	}

	var s Seed
	if err := json.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("seed: decode %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Seed{}, err
	}
	return s, nil
}

func (s Seed) Validate() error {
	users := make(map[string]struct{}, len(s.Users))
	for _, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("seed: user without _id")
		}
		users[u.ID] = struct{}{}
	}
	for _, l := range s.Listings {
		if l.ID == "" {
			return fmt.Errorf("seed: listing without _id")
		}
		if _, ok := users[l.OwnerID]; !ok {
			return fmt.Errorf("seed: listing %s has unknown owner %q", l.ID, l.OwnerID)
		}
	}
	return nil
}

// Owners returns the users that own at least one listing.
func (s Seed) Owners() map[string][]listing.Listing {
	out := make(map[string][]listing.Listing)
	for _, l := range s.Listings {
		out[l.OwnerID] = append(out[l.OwnerID], l)
	}
	return out
}

// Customers returns users with the customer role.
func (s Seed) Customers() []user.User {
	var out []user.User
	for _, u := range s.Users {
		if u.Role == user.RoleCustomer {
			out = append(out, u)
		}
	}
	return out
}

// Memory builds in-process directories from the seed.
func (s Seed) Memory() (*user.MemoryDirectory, *listing.MemoryDirectory) {
	return user.NewMemoryDirectory(s.Users...), listing.NewMemoryDirectory(s.Listings...)
}

// ToPostgres upserts the seed into the users and listings tables.
func (s Seed) ToPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	for _, u := range s.Users {
		batch.Queue(`INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`,
			u.ID, u.Name, u.Email, string(u.Role))
	}
	for _, l := range s.Listings {
		batch.Queue(`INSERT INTO listings (id, owner_id, title, address, price) VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (id) DO UPDATE SET owner_id = EXCLUDED.owner_id, title = EXCLUDED.title,
                address = EXCLUDED.address, price = EXCLUDED.price`,
			l.ID, l.OwnerID, l.Title, l.Address, l.Price)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed: postgres: %w", err)
	}
	return nil
}

// ToMongo upserts the seed into the users and listings collections.
func (s Seed) ToMongo(ctx context.Context, database *mongo.Database) error {
	upsert := options.Replace().SetUpsert(true)

	users := database.Collection("users")
	for _, u := range s.Users {
		doc := bson.M{"_id": u.ID, "name": u.Name, "email": u.Email, "role": string(u.Role)}
		if _, err := users.ReplaceOne(ctx, bson.M{"_id": u.ID}, doc, upsert); err != nil {
			return fmt.Errorf("seed: mongo user %s: %w", u.ID, err)
		}
	}

	listings := database.Collection("listings")
	for _, l := range s.Listings {
		doc := bson.M{"_id": l.ID, "owner": l.OwnerID, "title": l.Title, "address": l.Address, "price": l.Price}
		if _, err := listings.ReplaceOne(ctx, bson.M{"_id": l.ID}, doc, upsert); err != nil {
			return fmt.Errorf("seed: mongo listing %s: %w", l.ID, err)
		}
	}
	return nil
}
