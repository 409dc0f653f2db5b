package lock

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a collection keyed by the lock key. The
// unique _id makes a concurrent insert fail with a duplicate key error.
type MongoStore struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoStore(col *mongo.Collection) *MongoStore {
	return &MongoStore{col: col, now: time.Now}
}

// EnsureIndexes creates the TTL index that lets Mongo purge expired locks.
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresOn", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0).SetName("expiresOn_ttl"),
	}
	if _, err := m.col.Indexes().CreateOne(ctx, idx); err != nil {
		return fmt.Errorf("create lock ttl index: %w", err)
	}
	return nil
}

func (m *MongoStore) TakeLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	now := m.now().UTC()
	// the TTL monitor only runs once a minute; clear an expired holder ourselves
	if _, err := m.col.DeleteOne(ctx, bson.M{"_id": key, "expiresOn": bson.M{"$lte": now}}); err != nil {
		return nil, fmt.Errorf("take lock %s: clear expired: %w", key, err)
	}
	l := &Lock{Key: key, Owner: newOwner(), ExpiresOn: now.Add(ttl)}
	if _, err := m.col.InsertOne(ctx, l); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrLockTaken
		}
		return nil, fmt.Errorf("take lock %s: %w", key, err)
	}
	return l, nil
}

func (m *MongoStore) ReleaseLock(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	if _, err := m.col.DeleteOne(ctx, bson.M{"_id": l.Key, "owner": l.Owner}); err != nil {
		return fmt.Errorf("release lock %s: %w", l.Key, err)
	}
	return nil
}

func (m *MongoStore) ExtendLock(ctx context.Context, l *Lock, ttl time.Duration) error {
	now := m.now().UTC()
	expires := now.Add(ttl)
	res, err := m.col.UpdateOne(ctx,
		bson.M{"_id": l.Key, "owner": l.Owner, "expiresOn": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"expiresOn": expires}},
	)
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.Key, err)
	}
	if res.MatchedCount == 0 {
		return ErrLockTaken
	}
	l.ExpiresOn = expires
	return nil
}
