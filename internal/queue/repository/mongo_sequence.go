package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/pkg/config"
	"clinicflow/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoSequenceRepository struct {
	collection *mongo.Collection
	opTimeout  time.Duration
}

func NewMongoSequenceRepository(cfg *config.Config) SequenceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSequenceRepository{
		collection: db.Collection(SequenceCollection),
		opTimeout:  cfg.StoreOpTimeout,
	}
}

func unlockFields() bson.M {
	return bson.M{"lock_expires_at": "", "lock_token": ""}
}

func (r *mongoSequenceRepository) ReclaimExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{
		"locked":          true,
		"lock_expires_at": bson.M{"$lt": now},
	}
	update := bson.M{
		"$set":   bson.M{"locked": false},
		"$unset": unlockFields(),
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired sequence locks: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *mongoSequenceRepository) Acquire(ctx context.Context, key, token string, now time.Time, ttl time.Duration) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"_id": key, "locked": false}
	update := bson.M{
		"$set": bson.M{
			"locked":          true,
			"lock_expires_at": now.Add(ttl),
			"lock_token":      token,
		},
		"$setOnInsert": bson.M{
			"value":        int64(0),
			"created_at":   now,
			"last_updated": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// A locked record fails the filter, so the upsert collides on _id.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire sequence lock: %w", err)
	}

	return result.MatchedCount == 1 || result.UpsertedCount == 1, nil
}

func (r *mongoSequenceRepository) IncrementAndRelease(ctx context.Context, key, token string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"_id": key, "locked": true, "lock_token": token}
	update := bson.M{
		"$inc":   bson.M{"value": int64(1)},
		"$set":   bson.M{"last_updated": now, "locked": false},
		"$unset": unlockFields(),
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var counter model.SequenceCounter
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, fmt.Errorf("%w: %s", queueerrors.ErrAllocationConsistency, key)
		}
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return counter.Value, nil
}

func (r *mongoSequenceRepository) Release(ctx context.Context, key, token string) error {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"_id": key, "lock_token": token}
	update := bson.M{
		"$set":   bson.M{"locked": false},
		"$unset": unlockFields(),
	}
	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to release sequence lock: %w", err)
	}
	return nil
}

func (r *mongoSequenceRepository) Get(ctx context.Context, key string) (*model.SequenceCounter, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	var counter model.SequenceCounter
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&counter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: sequence counter %s", queueerrors.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to find sequence counter: %w", err)
	}
	return &counter, nil
}

func (r *mongoSequenceRepository) List(ctx context.Context, limit int) ([]*model.SequenceCounter, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequence counters: %w", err)
	}
	defer cursor.Close(ctx)

	var counters []*model.SequenceCounter
	if err = cursor.All(ctx, &counters); err != nil {
		return nil, fmt.Errorf("failed to decode sequence counters: %w", err)
	}
	return counters, nil
}
