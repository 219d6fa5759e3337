package lock

import (
	"context"
	"fmt"
	"spacebook/pkg/config"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	CollectionName = "Locks"

	defaultRetryInterval = 25 * time.Millisecond
)

// document is one advisory lock. A unique _id makes a second insert for the
// same key fail with a duplicate key error; expired documents are removed
// by the TTL index on expires_at and reclaimed eagerly on contention.
type document struct {
	ID        string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoLocker shares locks between service replicas through a collection.
type MongoLocker struct {
	collection    *mongo.Collection
	ttl           time.Duration
	maxWait       time.Duration
	retryInterval time.Duration
	cfg           *config.Config
}

func NewMongoLocker(cfg *config.Config) *MongoLocker {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &MongoLocker{
		collection:    db.Collection(CollectionName),
		ttl:           cfg.LockTTL,
		maxWait:       cfg.LockTTL,
		retryInterval: defaultRetryInterval,
		cfg:           cfg,
	}
}

func (l *MongoLocker) Lock(ctx context.Context, keys ...string) (Unlock, error) {
	keys = normalize(keys)
	owner := uuid.NewString()
	held := make([]string, 0, len(keys))

	releaseAll := func() {
		// Release with a fresh context so a cancelled request still frees its locks.
		rctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if _, err := l.collection.DeleteOne(rctx, bson.M{"_id": held[i], "owner": owner}); err != nil {
				l.cfg.Log.Warn("Failed to release lock", "key", held[i], "error", err)
			}
		}
	}

	for _, key := range keys {
		if err := l.acquire(ctx, key, owner); err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, key)
	}
	return releaseAll, nil
}

func (l *MongoLocker) acquire(ctx context.Context, key, owner string) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	for {
		now := time.Now().UTC()
		_, err := l.collection.InsertOne(waitCtx, document{
			ID:        key,
			Owner:     owner,
			ExpiresAt: now.Add(l.ttl),
			CreatedAt: now,
		})
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}

		// The holder may have crashed; the TTL monitor only runs once a minute.
		if _, err := l.collection.DeleteOne(waitCtx, bson.M{"_id": key, "expires_at": bson.M{"$lt": now}}); err != nil && waitCtx.Err() == nil {
			l.cfg.Log.Warn("Failed to reclaim expired lock", "key", key, "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s", ErrBusy, key)
		case <-time.After(l.retryInterval):
		}
	}
}
