// repositories/notification_repository.go
package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const NotificationCollection = "boundary_notifications"

type NotificationRepository struct {
	collection *mongo.Collection
	counters   *CounterRepository
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		collection: db.Collection(NotificationCollection),
		counters:   NewCounterRepository(db),
	}
}

func (nr *NotificationRepository) Create(ctx context.Context, record *models.NotificationRecord) error {
	// $push needs an array, not null
	if record.AuditTrail == nil {
		record.AuditTrail = []models.AuditEntry{}
	}
	_, err := nr.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError("notification already exists for this event")
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (nr *NotificationRepository) GetByID(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return nr.findOne(ctx, bson.M{"_id": id})
}

func (nr *NotificationRepository) GetBySourceEvent(ctx context.Context, eventID string) (*models.NotificationRecord, error) {
	return nr.findOne(ctx, bson.M{"sourceEventId": eventID})
}

func (nr *NotificationRepository) FindOpenEpisode(ctx context.Context, trackerID, toArea string) (*models.NotificationRecord, error) {
	return nr.findOne(ctx, bson.M{"trackerId": trackerID, "toArea": toArea, "episodeOpen": true})
}

func (nr *NotificationRepository) findOne(ctx context.Context, filter bson.M) (*models.NotificationRecord, error) {
	var record models.NotificationRecord
	err := nr.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &record, nil
}

// Update never rewrites the audit trail: new entries are pushed, and the
// version guard rejects writers that read an older copy.
func (nr *NotificationRepository) Update(ctx context.Context, record *models.NotificationRecord, audit ...models.AuditEntry) error {
	set := bson.M{
		"status":       record.Status,
		"reportStatus": record.ReportStatus,
		"remarks":      record.Remarks,
		"episodeOpen":  record.EpisodeOpen,
		"updatedAt":    record.UpdatedAt,
	}
	if record.ReadAt != nil {
		set["readAt"] = *record.ReadAt
	}
	if record.DismissedAt != nil {
		set["dismissedAt"] = *record.DismissedAt
	}

	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}
	if len(audit) > 0 {
		update["$push"] = bson.M{"auditTrail": bson.M{"$each": audit}}
	}

	result, err := nr.collection.UpdateOne(ctx, bson.M{"_id": record.ID, "version": record.Version}, update)
	if err != nil {
		return utils.NewDatabaseError("update notification", err)
	}
	if result.MatchedCount == 0 {
		count, err := nr.collection.CountDocuments(ctx, bson.M{"_id": record.ID})
		if err != nil {
			return utils.NewDatabaseError("update notification", err)
		}
		if count == 0 {
			return utils.ErrNotificationNotFound
		}
		return utils.ErrStaleNotification
	}

	record.Version++
	record.AuditTrail = append(record.AuditTrail, audit...)
	return nil
}

func (nr *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationRecord, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.TrackerID != "" {
		query["trackerId"] = filter.TrackerID
	}

	total, err := nr.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(filter.Skip)
	if filter.Limit > 0 {
		findOptions.SetLimit(filter.Limit)
	}

	cursor, err := nr.collection.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.NotificationRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode notifications: %w", err)
	}

	return records, total, nil
}

func (nr *NotificationRepository) MarkAllRead(ctx context.Context, readAt time.Time) (int64, error) {
	result, err := nr.collection.UpdateMany(ctx,
		bson.M{"status": models.NotificationPending},
		bson.M{
			"$set": bson.M{
				"status":    models.NotificationRead,
				"readAt":    readAt,
				"updatedAt": readAt,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return 0, utils.NewDatabaseError("mark notifications read", err)
	}
	return result.ModifiedCount, nil
}

func (nr *NotificationRepository) CountUnread(ctx context.Context) (int64, error) {
	count, err := nr.collection.CountDocuments(ctx, bson.M{
		"status": models.NotificationPending,
		"readAt": bson.M{"$exists": false},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (nr *NotificationRepository) NextReportSequence(ctx context.Context, year int) (int64, error) {
	return nr.counters.Next(ctx, fmt.Sprintf("report_number_%d", year))
}

// MemoryNotificationRepository is an in-process NotificationStore
type MemoryNotificationRepository struct {
	mu       sync.RWMutex
	records  map[string]*models.NotificationRecord
	bySource map[string]string
	reports  map[int]int64
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{
		records:  make(map[string]*models.NotificationRecord),
		bySource: make(map[string]string),
		reports:  make(map[int]int64),
	}
}

func (mr *MemoryNotificationRepository) Create(ctx context.Context, record *models.NotificationRecord) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	if _, exists := mr.records[record.ID]; exists {
		return utils.NewConflictError("notification already exists")
	}
	if _, exists := mr.bySource[record.SourceEventID]; exists && record.SourceEventID != "" {
		return utils.NewConflictError("notification already exists for this event")
	}

	mr.records[record.ID] = cloneRecord(record)
	if record.SourceEventID != "" {
		mr.bySource[record.SourceEventID] = record.ID
	}
	return nil
}

func (mr *MemoryNotificationRepository) GetByID(ctx context.Context, id string) (*models.NotificationRecord, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	record, ok := mr.records[id]
	if !ok {
		return nil, utils.ErrNotificationNotFound
	}
	return cloneRecord(record), nil
}

func (mr *MemoryNotificationRepository) GetBySourceEvent(ctx context.Context, eventID string) (*models.NotificationRecord, error) {
	mr.mu.RLock()
	id, ok := mr.bySource[eventID]
	mr.mu.RUnlock()
	if !ok {
		return nil, utils.ErrNotificationNotFound
	}
	return mr.GetByID(ctx, id)
}

func (mr *MemoryNotificationRepository) FindOpenEpisode(ctx context.Context, trackerID, toArea string) (*models.NotificationRecord, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	for _, record := range mr.records {
		if record.TrackerID == trackerID && record.ToArea == toArea && record.EpisodeOpen {
			return cloneRecord(record), nil
		}
	}
	return nil, utils.ErrNotificationNotFound
}

func (mr *MemoryNotificationRepository) Update(ctx context.Context, record *models.NotificationRecord, audit ...models.AuditEntry) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	stored, ok := mr.records[record.ID]
	if !ok {
		return utils.ErrNotificationNotFound
	}
	if stored.Version != record.Version {
		return utils.ErrStaleNotification
	}

	trail := append(append([]models.AuditEntry(nil), stored.AuditTrail...), audit...)
	next := cloneRecord(record)
	next.AuditTrail = trail
	next.Version = stored.Version + 1
	mr.records[record.ID] = next

	record.Version = next.Version
	record.AuditTrail = append([]models.AuditEntry(nil), trail...)
	return nil
}

func (mr *MemoryNotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationRecord, int64, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	matched := []models.NotificationRecord{}
	for _, record := range mr.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.TrackerID != "" && record.TrackerID != filter.TrackerID {
			continue
		}
		matched = append(matched, *cloneRecord(record))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := filter.Skip
	if start > total {
		start = total
	}
	end := total
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return matched[start:end], total, nil
}

func (mr *MemoryNotificationRepository) MarkAllRead(ctx context.Context, readAt time.Time) (int64, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	var modified int64
	for _, record := range mr.records {
		if record.Status != models.NotificationPending {
			continue
		}
		record.Status = models.NotificationRead
		if record.ReadAt == nil {
			t := readAt
			record.ReadAt = &t
		}
		record.UpdatedAt = readAt
		record.Version++
		modified++
	}
	return modified, nil
}

func (mr *MemoryNotificationRepository) CountUnread(ctx context.Context) (int64, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()

	var count int64
	for _, record := range mr.records {
		if record.IsUnread() {
			count++
		}
	}
	return count, nil
}

func (mr *MemoryNotificationRepository) NextReportSequence(ctx context.Context, year int) (int64, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	mr.reports[year]++
	return mr.reports[year], nil
}

func cloneRecord(r *models.NotificationRecord) *models.NotificationRecord {
	cp := *r
	if r.ReadAt != nil {
		t := *r.ReadAt
		cp.ReadAt = &t
	}
	if r.DismissedAt != nil {
		t := *r.DismissedAt
		cp.DismissedAt = &t
	}
	cp.AuditTrail = append([]models.AuditEntry(nil), r.AuditTrail...)
	return &cp
}
