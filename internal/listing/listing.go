package listing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrListingNotFound is returned when a listing id does not resolve.
var ErrListingNotFound = errors.New("listing not found")

// Listing is the summary of a property listing that conversations are populated with.
type Listing struct {
	ID      string  `json:"_id"`
	OwnerID string  `json:"owner,omitempty"`
	Title   string  `json:"title"`
	Address string  `json:"address"`
	Price   float64 `json:"price"`
}

// Directory resolves listing ids. Listings are owned by the listing service.
type Directory interface {
	GetListing(ctx context.Context, id string) (Listing, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetListing(ctx context.Context, id string) (Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Listing{}, ErrListingNotFound
	}

	var l Listing
	query := "SELECT id, owner_id, title, address, price FROM listings WHERE id = $1"
	err := r.pool.QueryRow(ctx, query, id).Scan(&l.ID, &l.OwnerID, &l.Title, &l.Address, &l.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrListingNotFound
		}
		return Listing{}, err
	}
	return l, nil
}

// MemoryDirectory is an in-process directory used for dev mode and tests.
type MemoryDirectory struct {
	mu       sync.RWMutex
	listings map[string]Listing
}

func NewMemoryDirectory(listings ...Listing) *MemoryDirectory {
	d := &MemoryDirectory{listings: make(map[string]Listing, len(listings))}
	for _, l := range listings {
		d.Put(l)
	}
	return d
}

func (d *MemoryDirectory) Put(l Listing) {
	d.mu.Lock()
	d.listings[l.ID] = l
	d.mu.Unlock()
}

func (d *MemoryDirectory) GetListing(ctx context.Context, id string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	d.mu.RLock()
	l, ok := d.listings[id]
	d.mu.RUnlock()
	if !ok {
		return Listing{}, ErrListingNotFound
	}
	return l, nil
}
