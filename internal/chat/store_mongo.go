package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store over the conversations and messages collections.
// pairKey holds the sorted participant pair so that a unique index can cover the
// unordered (participants, listing) combination.
type MongoStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewMongoStore(database *mongo.Database) *MongoStore {
	return &MongoStore{
		conversations: database.Collection("conversations"),
		messages:      database.Collection("messages"),
	}
}

// EnsureIndexes creates the indexes the store relies on. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "pairKey", Value: 1}, {Key: "listingId", Value: 1}},
			Options: options.Index().SetName("pair_listing_uq").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updatedAt", Value: -1}},
			Options: options.Index().SetName("participants_updated"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: conversation indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("conversation_created"),
		},
		{
			Keys:    bson.D{{Key: "receiverId", Value: 1}, {Key: "isRead", Value: 1}, {Key: "conversationId", Value: 1}},
			Options: options.Index().SetName("receiver_unread"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo: message indexes: %w", err)
	}
	return nil
}

type conversationDoc struct {
	ID            string     `bson:"_id"`
	Participants  []string   `bson:"participants"`
	PairKey       string     `bson:"pairKey"`
	ListingID     string     `bson:"listingId"`
	LastMessage   string     `bson:"lastMessage"`
	LastMessageAt *time.Time `bson:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt"`
}

func (d conversationDoc) toConversation() Conversation {
	c := Conversation{
		ID:          d.ID,
		ListingID:   d.ListingID,
		LastMessage: d.LastMessage,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	copy(c.Participants[:], d.Participants)
	if d.LastMessageAt != nil {
		c.LastMessageAt = d.LastMessageAt.UTC()
	}
	return c
}

type messageDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversationId"`
	SenderID       string    `bson:"senderId"`
	ReceiverID     string    `bson:"receiverId"`
	MessageText    string    `bson:"messageText"`
	IsRead         bool      `bson:"isRead"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func (s *MongoStore) FindConversation(ctx context.Context, a, b, listingID string) (Conversation, error) {
	const op = "chat.MongoStore.FindConversation"

	var doc conversationDoc
	err := s.conversations.FindOne(ctx, bson.M{"pairKey": PairKey(a, b), "listingId": listingID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Conversation{}, notFound(op, "Conversation not found")
		}
		return Conversation{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toConversation(), nil
}

func (s *MongoStore) InsertConversation(ctx context.Context, c Conversation) error {
	const op = "chat.MongoStore.InsertConversation"

	doc := conversationDoc{
		ID:           c.ID,
		Participants: []string{c.Participants[0], c.Participants[1]},
		PairKey:      PairKey(c.Participants[0], c.Participants[1]),
		ListingID:    c.ListingID,
		LastMessage:  c.LastMessage,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if !c.LastMessageAt.IsZero() {
		doc.LastMessageAt = &c.LastMessageAt
	}

	if _, err := s.conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return OpError{Op: op, Kind: ErrConflict, Msg: "conversation already exists"}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	const op = "chat.MongoStore.GetConversation"

	var doc conversationDoc
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Conversation{}, notFound(op, "Conversation not found")
		}
		return Conversation{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toConversation(), nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	const op = "chat.MongoStore.ListConversations"

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.conversations.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	out := make([]Conversation, 0)
	for cur.Next(ctx) {
		var doc conversationDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		out = append(out, doc.toConversation())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *MongoStore) TouchConversation(ctx context.Context, id, lastMessage string, at time.Time) error {
	const op = "chat.MongoStore.TouchConversation"

	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"lastMessageAt": bson.M{"$exists": false}},
			bson.M{"lastMessageAt": nil},
			bson.M{"lastMessageAt": bson.M{"$lte": at}},
		},
	}
	update := bson.M{"$set": bson.M{"lastMessage": lastMessage, "lastMessageAt": at, "updatedAt": at}}
	if _, err := s.conversations.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, m Message) error {
	const op = "chat.MongoStore.InsertMessage"

	doc := messageDoc{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		MessageText:    m.Text,
		IsRead:         m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	const op = "chat.MongoStore.ListMessages"

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	out := make([]Message, 0)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		out = append(out, Message{
			ID:             doc.ID,
			ConversationID: doc.ConversationID,
			SenderID:       doc.SenderID,
			ReceiverID:     doc.ReceiverID,
			Text:           doc.MessageText,
			Read:           doc.IsRead,
			CreatedAt:      doc.CreatedAt.UTC(),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	const op = "chat.MongoStore.MarkRead"

	res, err := s.messages.UpdateMany(ctx,
		bson.M{"conversationId": conversationID, "receiverId": receiverID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) UnreadCounts(ctx context.Context, receiverID string) (map[string]int64, error) {
	const op = "chat.MongoStore.UnreadCounts"

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"receiverId": receiverID, "isRead": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$conversationId", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cur.Close(ctx)

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
			N  int64  `bson:"n"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}
		out[row.ID] = row.N
	}
	return out, cur.Err()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.conversations.Database().Client().Ping(ctx, nil)
}

func (s *MongoStore) Close() error { return nil }
