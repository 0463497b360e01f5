package repositories

import (
	"context"
	"testing"
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingRecord(id string, at time.Time) *models.NotificationRecord {
	return &models.NotificationRecord{
		ID:            id,
		SourceEventID: "evt-" + id,
		TrackerID:     "MFBR-0001",
		ToArea:        "San Juan",
		Status:        models.NotificationPending,
		ReportStatus:  models.ReportNotReported,
		AuditTrail:    []models.AuditEntry{},
		EpisodeOpen:   true,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func TestMemoryNotificationRepository_UpdateAppendsAudit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryNotificationRepository()
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, pendingRecord("n1", now)))

	record, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)
	record.ReportStatus = models.ReportUnderInvestigation
	require.NoError(t, repo.Update(ctx, record, models.AuditEntry{
		Timestamp: now,
		OldStatus: models.ReportNotReported,
		NewStatus: models.ReportUnderInvestigation,
	}))

	assert.Equal(t, int64(1), record.Version)
	assert.Len(t, record.AuditTrail, 1)

	stored, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportUnderInvestigation, stored.ReportStatus)
	assert.Len(t, stored.AuditTrail, 1)
}

func TestMemoryNotificationRepository_StaleUpdateRejected(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryNotificationRepository()
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, pendingRecord("n1", now)))

	first, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)

	first.ReportStatus = models.ReportResolved
	require.NoError(t, repo.Update(ctx, first, models.AuditEntry{Timestamp: now, NewStatus: models.ReportResolved}))

	second.Status = models.NotificationDismissed
	second.AuditTrail = nil
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, utils.ErrStaleNotification)

	stored, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, stored.Status)
	assert.Len(t, stored.AuditTrail, 1, "a rejected writer cannot erase entries")

	err = repo.Update(ctx, pendingRecord("missing", now))
	assert.ErrorIs(t, err, utils.ErrNotificationNotFound)
}

func TestMemoryNotificationRepository_MarkAllReadBumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryNotificationRepository()
	now := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, pendingRecord("n1", now)))

	before, err := repo.GetByID(ctx, "n1")
	require.NoError(t, err)

	modified, err := repo.MarkAllRead(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), modified)

	before.Status = models.NotificationDismissed
	assert.ErrorIs(t, repo.Update(ctx, before), utils.ErrStaleNotification)
}
