package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"vesselwatch/models"
	"vesselwatch/repositories"
	"vesselwatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notificationFixture struct {
	service *NotificationService
	store   *repositories.MemoryNotificationRepository
	hub     *recordingBroadcaster
	clock   *utils.ManualClock
}

func newNotificationFixture(t *testing.T) *notificationFixture {
	t.Helper()
	store := repositories.NewMemoryNotificationRepository()
	hub := &recordingBroadcaster{}
	clock := utils.NewManualClock(testStart)
	vessels := staticVessels{
		"MFBR-0001": {
			TrackerID:    "MFBR-0001",
			MFBRNumber:   "MFBR-0001",
			BoatName:     "Bangka Uno",
			OwnerName:    "Juan Dela Cruz",
			OwnerContact: "09171234567",
			HomeArea:     "San Fernando",
		},
	}
	return &notificationFixture{
		service: NewNotificationService(store, vessels, hub, clock),
		store:   store,
		hub:     hub,
		clock:   clock,
	}
}

func (f *notificationFixture) violation(t *testing.T, id string) *models.NotificationRecord {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.service.HandleEvent(ctx, violationEvent(id, "MFBR-0001", f.clock.Now())))
	record, err := f.store.GetBySourceEvent(ctx, id)
	require.NoError(t, err)
	return record
}

func TestNotificationService_ViolationCreatesRecord(t *testing.T) {
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")

	assert.Equal(t, "RPT-2025-0001", record.ReportNumber)
	assert.Equal(t, models.NotificationPending, record.Status)
	assert.Equal(t, models.ReportNotReported, record.ReportStatus)
	assert.Equal(t, "Bangka Uno", record.BoatName)
	assert.Equal(t, "Juan Dela Cruz", record.OwnerName)
	assert.Equal(t, "San Juan", record.ToArea)
	assert.InDelta(t, 15.0, record.DwellMinutes, 1e-9)
	assert.True(t, record.EpisodeOpen)
	assert.Contains(t, record.Message, "Bangka Uno (MFBR-0001)")

	require.Len(t, f.hub.notifications, 1)
	assert.Equal(t, record.ID, f.hub.notifications[0].ID)
	assert.Equal(t, []string{ActionCreated}, f.hub.updateActions())
	assert.Equal(t, int64(1), f.hub.updates[0].UnreadCount)
}

func TestNotificationService_DuplicateDeliveryIgnored(t *testing.T) {
	f := newNotificationFixture(t)
	first := f.violation(t, "evt-1")
	second := f.violation(t, "evt-1")

	assert.Equal(t, first.ID, second.ID)
	_, total, err := f.store.List(context.Background(), models.NotificationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, f.hub.notifications, 1)

	next := f.violation(t, "evt-2")
	assert.Equal(t, "RPT-2025-0002", next.ReportNumber)
}

func TestNotificationService_MarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")

	f.clock.Advance(time.Minute)
	read, err := f.service.MarkRead(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, read.ReadAt)
	firstReadAt := *read.ReadAt
	assert.Equal(t, models.NotificationRead, read.Status)

	f.clock.Advance(time.Minute)
	again, err := f.service.MarkRead(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, firstReadAt, *again.ReadAt)

	unread, err := f.service.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.Equal(t, []string{ActionCreated, ActionMarkRead}, f.hub.updateActions())
}

func TestNotificationService_DismissIsTerminal(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")

	dismissed, err := f.service.Dismiss(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationDismissed, dismissed.Status)
	require.NotNil(t, dismissed.DismissedAt)

	afterRead, err := f.service.MarkRead(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationDismissed, afterRead.Status)
	assert.Nil(t, afterRead.ReadAt)

	_, err = f.service.Dismiss(ctx, record.ID)
	require.NoError(t, err)

	modified, err := f.service.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Zero(t, modified)
}

func TestNotificationService_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	f.violation(t, "evt-1")
	f.violation(t, "evt-2")

	modified, err := f.service.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), modified)

	unread, err := f.service.UnreadCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.Equal(t, ActionMarkAllRead, f.hub.updateActions()[len(f.hub.updates)-1])
}

func TestNotificationService_UpdateReportStatus(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")

	remarks := "Coast guard notified"
	f.clock.Advance(time.Minute)
	updated, err := f.service.UpdateReportStatus(ctx, record.ID, models.ReportStatusRequest{
		ReportStatus: models.ReportUnderInvestigation,
		Remarks:      &remarks,
		UpdatedBy:    "officer-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportUnderInvestigation, updated.ReportStatus)
	assert.Equal(t, models.NotificationPending, updated.Status, "report status is independent of read state")
	require.Len(t, updated.AuditTrail, 1)

	entry := updated.AuditTrail[0]
	assert.Equal(t, models.ReportNotReported, entry.OldStatus)
	assert.Equal(t, models.ReportUnderInvestigation, entry.NewStatus)
	assert.Equal(t, "", entry.OldRemarks)
	assert.Equal(t, remarks, entry.NewRemarks)
	assert.True(t, entry.RemarksChanged)
	assert.Equal(t, "officer-1", entry.UpdatedBy)

	f.clock.Advance(time.Minute)
	updated, err = f.service.UpdateReportStatus(ctx, record.ID, models.ReportStatusRequest{
		ReportStatus: models.ReportResolved,
	})
	require.NoError(t, err)
	require.Len(t, updated.AuditTrail, 2)
	assert.False(t, updated.AuditTrail[1].RemarksChanged)
	assert.Equal(t, remarks, updated.Remarks)

	trail, err := f.service.AuditTrail(ctx, record.ID)
	require.NoError(t, err)
	status, replayedRemarks := ReplayAudit(trail)
	assert.Equal(t, updated.ReportStatus, status)
	assert.Equal(t, updated.Remarks, replayedRemarks)
}

func TestNotificationService_UpdateReportStatusNoChanges(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")

	same := ""
	unchanged, err := f.service.UpdateReportStatus(ctx, record.ID, models.ReportStatusRequest{
		ReportStatus: models.ReportNotReported,
		Remarks:      &same,
	})
	assert.ErrorIs(t, err, utils.ErrNoChanges)
	require.NotNil(t, unchanged)
	assert.Empty(t, unchanged.AuditTrail)

	_, err = f.service.UpdateReportStatus(ctx, record.ID, models.ReportStatusRequest{
		ReportStatus: models.ReportStatus("escalated"),
	})
	assert.ErrorIs(t, err, utils.ErrInvalidReportStatus)
}

func TestNotificationService_EpisodeClosedOnResume(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")

	resume := models.DomainEvent{
		ID:        "evt-2",
		TrackerID: "MFBR-0001",
		Type:      models.EventIdleResume,
		Timestamp: f.clock.Advance(time.Minute),
		Fields:    models.EventFields{Geofence: "San Juan"},
	}
	require.NoError(t, f.service.HandleEvent(ctx, resume))

	closed, err := f.service.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, closed.EpisodeOpen)

	require.Len(t, f.hub.cleared, 1)
	assert.Equal(t, models.EventIdleResume, f.hub.cleared[0].Reason)
	assert.Equal(t, "San Juan", f.hub.cleared[0].Geofence)

	active, err := f.service.ActiveViolations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// no open episode left, nothing to clear
	require.NoError(t, f.service.HandleEvent(ctx, resume))
	assert.Len(t, f.hub.cleared, 1)
}

func TestNotificationService_Statistics(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	first := f.violation(t, "evt-1")
	f.violation(t, "evt-2")

	_, err := f.service.MarkRead(ctx, first.ID)
	require.NoError(t, err)

	stats, err := f.service.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Unread)
	assert.Equal(t, int64(1), stats.ByStatus[string(models.NotificationRead)])
	assert.Equal(t, int64(2), stats.ByReportStatus[string(models.ReportNotReported)])
	assert.Equal(t, int64(0), stats.ByReportStatus[string(models.ReportResolved)])
	assert.Equal(t, int64(2), stats.ActiveEpisodes)
}

func TestNotificationService_NotifiesOwner(t *testing.T) {
	f := newNotificationFixture(t)
	owners := newFakeOwners()
	f.service.SetOwnerNotifier(owners)

	record := f.violation(t, "evt-1")

	select {
	case call := <-owners.calls:
		assert.Equal(t, record.ReportNumber, call.record.ReportNumber)
		require.NotNil(t, call.vessel)
		assert.Equal(t, "09171234567", call.vessel.OwnerContact)
	case <-time.After(2 * time.Second):
		t.Fatal("owner was not notified")
	}
}

func TestReplayAudit(t *testing.T) {
	base := testStart
	entries := []models.AuditEntry{
		{Timestamp: base.Add(2 * time.Minute), OldStatus: models.ReportUnderInvestigation, NewStatus: models.ReportResolved, OldRemarks: "a", NewRemarks: "b"},
		{Timestamp: base, OldStatus: models.ReportNotReported, NewStatus: models.ReportUnderInvestigation, NewRemarks: "a"},
	}

	status, remarks := ReplayAudit(entries)
	assert.Equal(t, models.ReportResolved, status)
	assert.Equal(t, "b", remarks)

	status, remarks = ReplayAudit(nil)
	assert.Equal(t, models.ReportNotReported, status)
	assert.Empty(t, remarks)
}

// lockstepStore makes the first two reads wait for each other, so both
// writers start from the same copy of the record
type lockstepStore struct {
	*repositories.MemoryNotificationRepository
	reads   atomic.Int32
	barrier sync.WaitGroup
}

func newLockstepStore(store *repositories.MemoryNotificationRepository) *lockstepStore {
	s := &lockstepStore{MemoryNotificationRepository: store}
	s.barrier.Add(2)
	return s
}

func (s *lockstepStore) GetByID(ctx context.Context, id string) (*models.NotificationRecord, error) {
	record, err := s.MemoryNotificationRepository.GetByID(ctx, id)
	if s.reads.Add(1) <= 2 {
		s.barrier.Done()
		s.barrier.Wait()
	}
	return record, err
}

func TestNotificationService_ConcurrentReportUpdatesKeepEveryAuditEntry(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")
	service := NewNotificationService(newLockstepStore(f.store), nil, f.hub, f.clock)

	investigating := "patrol dispatched"
	requests := []models.ReportStatusRequest{
		{ReportStatus: models.ReportUnderInvestigation, Remarks: &investigating},
		{ReportStatus: models.ReportFisherfolkReported},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(requests))
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req models.ReportStatusRequest) {
			defer wg.Done()
			_, errs[i] = service.UpdateReportStatus(ctx, record.ID, req)
		}(i, req)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.service.Get(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, stored.AuditTrail, 2)
	assert.Equal(t, int64(2), stored.Version)

	// each entry starts where the previous one ended
	assert.Equal(t, models.ReportNotReported, stored.AuditTrail[0].OldStatus)
	assert.Equal(t, stored.AuditTrail[0].NewStatus, stored.AuditTrail[1].OldStatus)
	assert.Equal(t, stored.AuditTrail[0].NewRemarks, stored.AuditTrail[1].OldRemarks)

	status, remarks := ReplayAudit(stored.AuditTrail)
	assert.Equal(t, stored.ReportStatus, status)
	assert.Equal(t, stored.Remarks, remarks)
}

func TestNotificationService_MarkReadRacingReportUpdate(t *testing.T) {
	ctx := context.Background()
	f := newNotificationFixture(t)
	record := f.violation(t, "evt-1")
	service := NewNotificationService(newLockstepStore(f.store), nil, f.hub, f.clock)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := service.MarkRead(ctx, record.ID)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := service.UpdateReportStatus(ctx, record.ID, models.ReportStatusRequest{ReportStatus: models.ReportResolved})
		assert.NoError(t, err)
	}()
	wg.Wait()

	stored, err := f.service.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationRead, stored.Status)
	require.NotNil(t, stored.ReadAt)
	assert.Equal(t, models.ReportResolved, stored.ReportStatus)
	assert.Len(t, stored.AuditTrail, 1)
}
