package repositories

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CounterCollection = "counters"

// CounterRepository hands out monotonically increasing sequence numbers
type CounterRepository struct {
	collection *mongo.Collection
}

type counterDoc struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

func NewCounterRepository(db *mongo.Database) *CounterRepository {
	return &CounterRepository{
		collection: db.Collection(CounterCollection),
	}
}

// Reserve increments the named counter by n and returns the new value,
// so the caller owns the range (value-n, value].
func (cr *CounterRepository) Reserve(ctx context.Context, name string, n int64) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc counterDoc
	err := cr.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": n}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}

	return doc.Seq, nil
}

func (cr *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	return cr.Reserve(ctx, name, 1)
}

func (cr *CounterRepository) Current(ctx context.Context, name string) (int64, error) {
	var doc counterDoc
	err := cr.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read counter %s: %w", name, err)
	}
	return doc.Seq, nil
}
