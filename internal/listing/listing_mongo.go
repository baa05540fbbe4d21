package listing

import (
	"context"
	"errors"
	"strings"

	"rentchat/internal/db"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRepository reads the marketplace's listings collection. The owner reference
// is stored under "owner" by the listing service; "ownerId" is accepted as well.
type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(database *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: database.Collection("listings")}
}

type mongoListing struct {
	ID          any     `bson:"_id"`
	Owner       any     `bson:"owner"`
	OwnerID     any     `bson:"ownerId"`
	Title       string  `bson:"title"`
	Address     string  `bson:"address"`
	AddressText string  `bson:"addressText"`
	Price       float64 `bson:"price"`
}

func (r *MongoRepository) GetListing(ctx context.Context, id string) (Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Listing{}, ErrListingNotFound
	}

	var doc mongoListing
	err := r.coll.FindOne(ctx, bson.M{"_id": bson.M{"$in": db.IDCandidates(id)}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Listing{}, ErrListingNotFound
		}
		return Listing{}, err
	}

	l := Listing{
		ID:      db.FormatID(doc.ID),
		OwnerID: db.FormatID(doc.Owner),
		Title:   doc.Title,
		Address: doc.Address,
		Price:   doc.Price,
	}
	if l.OwnerID == "" {
		l.OwnerID = db.FormatID(doc.OwnerID)
	}
	if l.Address == "" {
		l.Address = doc.AddressText
	}
	return l, nil
}
