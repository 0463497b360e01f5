// repositories/event_repository.go
package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"
	"vesselwatch/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventCollection     = "tracker_events"
	eventSequenceName   = "tracker_events"
	defaultHistoryLimit = 500
)

// MongoEventLog stores domain events in an append-only collection.
// Sequences come from the counters collection so they are global and strictly increasing.
type MongoEventLog struct {
	collection *mongo.Collection
	counters   *CounterRepository
	tracer     trace.Tracer
}

func NewMongoEventLog(db *mongo.Database) *MongoEventLog {
	return &MongoEventLog{
		collection: db.Collection(EventCollection),
		counters:   NewCounterRepository(db),
		tracer:     otel.Tracer("vesselwatch/eventlog"),
	}
}

func (el *MongoEventLog) Append(ctx context.Context, events ...models.DomainEvent) ([]models.DomainEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	ctx, span := el.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("tracker.id", events[0].TrackerID),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	last, err := el.counters.Reserve(ctx, eventSequenceName, int64(len(events)))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve event sequence: %w", err)
	}

	stored := make([]models.DomainEvent, len(events))
	docs := make([]interface{}, len(events))
	first := last - int64(len(events)) + 1
	for i, event := range events {
		event.Sequence = first + int64(i)
		stored[i] = event
		docs[i] = event
	}

	// ordered insert keeps the log gap-free up to the first failure
	if _, err := el.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		span.SetAttributes(attribute.Bool("append.success", false))
		return nil, fmt.Errorf("failed to append events: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("append.success", true),
		attribute.Int64("sequence.last", last),
	)
	return stored, nil
}

func (el *MongoEventLog) History(ctx context.Context, trackerID string, limit int) ([]models.DomainEvent, error) {
	ctx, span := el.tracer.Start(ctx, "eventlog.history",
		trace.WithAttributes(attribute.String("tracker.id", trackerID)),
	)
	defer span.End()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	// newest N, returned oldest first
	findOptions := options.Find().
		SetSort(bson.D{{Key: "sequence", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := el.collection.Find(ctx, bson.M{"trackerId": trackerID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracker history: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.DomainEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode tracker history: %w", err)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

func (el *MongoEventLog) Since(ctx context.Context, afterSequence int64, limit int) ([]models.DomainEvent, error) {
	ctx, span := el.tracer.Start(ctx, "eventlog.since",
		trace.WithAttributes(attribute.Int64("sequence.after", afterSequence)),
	)
	defer span.End()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "sequence", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := el.collection.Find(ctx, bson.M{"sequence": bson.M{"$gt": afterSequence}}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load events since %d: %w", afterSequence, err)
	}
	defer cursor.Close(ctx)

	var events []models.DomainEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

func (el *MongoEventLog) LastSequence(ctx context.Context) (int64, error) {
	return el.counters.Current(ctx, eventSequenceName)
}

// PurgeBefore deletes events older than cutoff. The sequence counter is
// untouched, so consumers resuming from a purged sequence get what is left.
func (el *MongoEventLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := el.tracer.Start(ctx, "eventlog.purge")
	defer span.End()

	result, err := el.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}
	span.SetAttributes(attribute.Int64("event.deleted", result.DeletedCount))
	return result.DeletedCount, nil
}

// MemoryEventLog keeps the log in process memory
type MemoryEventLog struct {
	mu        sync.RWMutex
	events    []models.DomainEvent
	byTracker map[string][]int
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{
		byTracker: make(map[string][]int),
	}
}

func (el *MemoryEventLog) Append(ctx context.Context, events ...models.DomainEvent) ([]models.DomainEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	stored := make([]models.DomainEvent, len(events))
	for i, event := range events {
		event.Sequence = int64(len(el.events) + 1)
		el.byTracker[event.TrackerID] = append(el.byTracker[event.TrackerID], len(el.events))
		el.events = append(el.events, event)
		stored[i] = event
	}
	return stored, nil
}

func (el *MemoryEventLog) History(ctx context.Context, trackerID string, limit int) ([]models.DomainEvent, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	idx := el.byTracker[trackerID]
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if len(idx) > limit {
		idx = idx[len(idx)-limit:]
	}

	events := make([]models.DomainEvent, 0, len(idx))
	for _, i := range idx {
		events = append(events, el.events[i])
	}
	return events, nil
}

func (el *MemoryEventLog) Since(ctx context.Context, afterSequence int64, limit int) ([]models.DomainEvent, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if afterSequence < 0 {
		afterSequence = 0
	}

	var events []models.DomainEvent
	// sequence n lives at index n-1
	for i := int(afterSequence); i < len(el.events) && len(events) < limit; i++ {
		events = append(events, el.events[i])
	}
	return events, nil
}

func (el *MemoryEventLog) LastSequence(ctx context.Context) (int64, error) {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return int64(len(el.events)), nil
}
