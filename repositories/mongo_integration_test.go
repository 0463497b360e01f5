package repositories

import (
	"context"
	"os"
	"testing"
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// setupTestMongo connects to MongoDB for integration tests.
// It skips the test if the server cannot be reached.
func setupTestMongo(t testing.TB) *mongo.Database {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		url = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url).SetServerSelectionTimeout(2*time.Second))
	if err != nil {
		t.Skipf("skipping integration test: could not connect to mongo: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("skipping integration test: could not ping mongo: %v", err)
	}

	db := client.Database("vesselwatch_test_" + uuid.New().String()[:8])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestMongoEventLog_AppendAndReplay(t *testing.T) {
	db := setupTestMongo(t)
	ctx := context.Background()
	log := NewMongoEventLog(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	stored, err := log.Append(ctx,
		models.DomainEvent{ID: uuid.New().String(), TrackerID: "a", Type: models.EventGeofenceEnter, Timestamp: now},
		models.DomainEvent{ID: uuid.New().String(), TrackerID: "a", Type: models.EventIdleStart, Timestamp: now.Add(time.Second)},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored[0].Sequence)
	assert.Equal(t, int64(2), stored[1].Sequence)

	_, err = log.Append(ctx, models.DomainEvent{ID: uuid.New().String(), TrackerID: "b", Type: models.EventViolation, Timestamp: now})
	require.NoError(t, err)

	history, err := log.History(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EventGeofenceEnter, history[0].Type)
	assert.Equal(t, models.EventIdleStart, history[1].Type)

	since, err := log.Since(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, "b", since[1].TrackerID)

	last, err := log.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestNotificationRepository_Lifecycle(t *testing.T) {
	db := setupTestMongo(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	record := &models.NotificationRecord{
		ID:            uuid.New().String(),
		SourceEventID: "evt-1",
		TrackerID:     "a",
		ToArea:        "San Juan",
		Status:        models.NotificationPending,
		ReportStatus:  models.ReportNotReported,
		EpisodeOpen:   true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, repo.Create(ctx, record))

	found, err := repo.GetBySourceEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)

	open, err := repo.FindOpenEpisode(ctx, "a", "San Juan")
	require.NoError(t, err)
	assert.Equal(t, record.ID, open.ID)

	unread, err := repo.CountUnread(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	modified, err := repo.MarkAllRead(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	// open was read before MarkAllRead bumped the version
	open.ReportStatus = models.ReportResolved
	assert.ErrorIs(t, repo.Update(ctx, open), utils.ErrStaleNotification)

	current, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	current.ReportStatus = models.ReportUnderInvestigation
	require.NoError(t, repo.Update(ctx, current, models.AuditEntry{
		Timestamp: now,
		OldStatus: models.ReportNotReported,
		NewStatus: models.ReportUnderInvestigation,
	}))

	stored, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationRead, stored.Status)
	assert.Equal(t, models.ReportUnderInvestigation, stored.ReportStatus)
	assert.Len(t, stored.AuditTrail, 1)
	assert.Equal(t, int64(2), stored.Version)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, utils.ErrNotificationNotFound)

	seq1, err := repo.NextReportSequence(ctx, 2025)
	require.NoError(t, err)
	seq2, err := repo.NextReportSequence(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, seq1+1, seq2)
}
