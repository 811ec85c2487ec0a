// Package stories purges expired stories from the document store.
package stories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "stories"

// Store removes stories whose expires_at has passed.
type Store interface {
	CountExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MongoStore keeps stories in a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
}

// Connect opens a client and returns the store with a close function.
func Connect(ctx context.Context, uri, database string) (*MongoStore, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	return NewMongoStore(client.Database(database)), client.Disconnect, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection(collectionName)}
}

func expiredFilter(now time.Time) bson.M {
	return bson.M{"expires_at": bson.M{"$lte": now}}
}

func (s *MongoStore) CountExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.collection.CountDocuments(ctx, expiredFilter(now))
}

func (s *MongoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, expiredFilter(now))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
