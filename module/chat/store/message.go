package store

import (
	"context"
	"time"

	"ChatRelay/module/chat/model"
	"ChatRelay/tools/errs"
	"ChatRelay/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collMessages = "messages"

// MessageStore is the durable append-only log of chat messages.
type MessageStore interface {
	// Append persists one message and assigns its authoritative timestamp.
	Append(ctx context.Context, room, username, body string) (model.ChatMessage, error)
	// Recent returns up to limit messages of the room, oldest first.
	Recent(ctx context.Context, room string, limit int) ([]model.ChatMessage, error)
}

type mongoMessageStore struct {
	db func() (*mongo.Database, bool)
}

// NewMongoMessageStore builds a store on top of a database accessor. The
// accessor indirection lets the store survive the async mongo manager: a
// not-yet-ready database surfaces as StoreUnavailable on each call.
func NewMongoMessageStore(db func() (*mongo.Database, bool)) MessageStore {
	return &mongoMessageStore{db: db}
}

func (s *mongoMessageStore) Append(ctx context.Context, room, username, body string) (model.ChatMessage, error) {
	db, ok := s.db()
	if !ok {
		return model.ChatMessage{}, errs.ErrStoreUnavailable.WrapMsg("mongo not ready")
	}

	msg := model.ChatMessage{
		ServerMsgID: ids.GenerateString(),
		Room:        room,
		Username:    username,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return model.ChatMessage{}, errs.ErrStoreUnavailable.WrapMsg("insert message", "room", room, "err", err)
	}
	return msg, nil
}

func (s *mongoMessageStore) Recent(ctx context.Context, room string, limit int) ([]model.ChatMessage, error) {
	db, ok := s.db()
	if !ok {
		return nil, errs.ErrStoreUnavailable.WrapMsg("mongo not ready")
	}
	if limit <= 0 {
		limit = 50
	}

	// Newest first in the query, reversed before returning so callers always
	// see oldest-first. Ties on created_at fall back to insertion order via _id.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := db.Collection(collMessages).Find(ctx, bson.M{"room": room}, opts)
	if err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("query recent", "room", room, "err", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []model.ChatMessage
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.ErrStoreUnavailable.WrapMsg("decode recent", "room", room, "err", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
