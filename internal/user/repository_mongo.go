package user

import (
	"context"
	"errors"
	"strings"

	"rentchat/internal/db"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRepository reads the users collection. Documents written by the original
// marketplace carry ObjectID keys; documents written by this service use string keys.
// Both resolve.
type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection("users")}
}

type mongoUser struct {
	ID    any    `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
	Role  string `bson:"role"`
}

func (r *MongoRepository) GetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrUserNotFound
	}

	var doc mongoUser
	err := r.coll.FindOne(ctx, bson.M{"_id": bson.M{"$in": db.IDCandidates(id)}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return User{ID: db.FormatID(doc.ID), Name: doc.Name, Email: doc.Email, Role: Role(doc.Role)}, nil
}
