package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
)

const (
	ActionCreated       = "created"
	ActionMarkRead      = "mark_read"
	ActionMarkAllRead   = "mark_all_read"
	ActionDismiss       = "dismiss"
	ActionReportStatus  = "report_status"
	ActionEpisodeClosed = "episode_closed"

	ownerNotifyTimeout = 30 * time.Second
	maxUpdateAttempts  = 5
)

// errUnchanged tells mutate the record is already in the requested state
var errUnchanged = errors.New("notification unchanged")

// NotificationService turns violation events into notification records and
// owns every mutation of those records afterwards.
type NotificationService struct {
	store       interfaces.NotificationStore
	vessels     interfaces.VesselDirectory
	broadcaster interfaces.WebSocketBroadcaster
	owners      interfaces.OwnerNotifier
	clock       utils.Clock
	newID       func() string
}

func NewNotificationService(
	store interfaces.NotificationStore,
	vessels interfaces.VesselDirectory,
	broadcaster interfaces.WebSocketBroadcaster,
	clock utils.Clock,
) *NotificationService {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &NotificationService{
		store:       store,
		vessels:     vessels,
		broadcaster: broadcaster,
		clock:       clock,
		newID:       utils.GenerateUUID,
	}
}

// SetBroadcaster attaches the live channel once the hub exists
func (ns *NotificationService) SetBroadcaster(broadcaster interfaces.WebSocketBroadcaster) {
	ns.broadcaster = broadcaster
}

// SetOwnerNotifier enables SMS/push outreach to vessel owners
func (ns *NotificationService) SetOwnerNotifier(owners interfaces.OwnerNotifier) {
	ns.owners = owners
}

// HandleEvent consumes the domain event stream. Only violations create
// records; idle_resume and geofence_exit close the open episode.
func (ns *NotificationService) HandleEvent(ctx context.Context, event models.DomainEvent) error {
	switch event.Type {
	case models.EventViolation:
		_, err := ns.createFromViolation(ctx, event)
		return err
	case models.EventIdleResume, models.EventGeofenceExit:
		return ns.closeEpisode(ctx, event)
	}
	return nil
}

func (ns *NotificationService) createFromViolation(ctx context.Context, event models.DomainEvent) (*models.NotificationRecord, error) {
	existing, err := ns.store.GetBySourceEvent(ctx, event.ID)
	if err == nil {
		logrus.Debugf("Duplicate delivery of violation %s ignored", event.ID)
		return existing, nil
	}
	if !errors.Is(err, utils.ErrNotificationNotFound) {
		return nil, err
	}

	vessel, _ := ns.lookupVessel(ctx, event.TrackerID)
	now := ns.clock.Now()

	seq, err := ns.store.NextReportSequence(ctx, event.Timestamp.Year())
	if err != nil {
		return nil, err
	}

	record := &models.NotificationRecord{
		ID:            ns.newID(),
		ReportNumber:  utils.FormatReportNumber(event.Timestamp.Year(), seq),
		SourceEventID: event.ID,
		TrackerID:     event.TrackerID,
		FromArea:      event.Fields.FromArea,
		ToArea:        event.Fields.ToArea,
		DwellMinutes:  event.Fields.DwellSeconds / 60,
		IdleSince:     event.Fields.IdleSince,
		ViolationAt:   event.Timestamp,
		Status:        models.NotificationPending,
		ReportStatus:  models.ReportNotReported,
		AuditTrail:    []models.AuditEntry{},
		EpisodeOpen:   true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if event.Fields.Position != nil {
		record.Position = *event.Fields.Position
	}
	if record.ToArea == "" {
		record.ToArea = event.Fields.Geofence
	}
	if vessel != nil {
		record.BoatName = vessel.BoatName
		record.MFBRNumber = vessel.MFBRNumber
		record.OwnerName = vessel.OwnerName
		if record.FromArea == "" && vessel.HomeArea != "" {
			record.FromArea = vessel.HomeArea
		}
	}
	record.Message = violationMessage(record)

	if err := ns.store.Create(ctx, record); err != nil {
		if svcErr, ok := utils.GetServiceError(err); ok && svcErr.Code == utils.ErrCodeConflict {
			// another delivery of the same event won the race
			return ns.store.GetBySourceEvent(ctx, event.ID)
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reportNumber": record.ReportNumber,
		"trackerId":    record.TrackerID,
		"toArea":       record.ToArea,
		"dwellMinutes": fmt.Sprintf("%.1f", record.DwellMinutes),
	}).Info("Boundary violation recorded")

	if ns.broadcaster != nil {
		ns.broadcaster.BroadcastBoundaryNotification(*record)
		ns.broadcastUpdate(ctx, ActionCreated, record)
	}

	if ns.owners != nil && vessel != nil {
		go ns.notifyOwner(*record, vessel)
	}

	return record, nil
}

func (ns *NotificationService) notifyOwner(record models.NotificationRecord, vessel *models.VesselInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), ownerNotifyTimeout)
	defer cancel()

	if err := ns.owners.NotifyViolation(ctx, record, vessel); err != nil {
		logrus.Warnf("Failed to notify owner of %s for %s: %v", record.TrackerID, record.ReportNumber, err)
	}
}

func (ns *NotificationService) closeEpisode(ctx context.Context, event models.DomainEvent) error {
	fence := event.Fields.Geofence
	if fence == "" {
		fence = event.Fields.ToArea
	}

	record, err := ns.store.FindOpenEpisode(ctx, event.TrackerID, fence)
	if err != nil {
		if errors.Is(err, utils.ErrNotificationNotFound) {
			return nil
		}
		return err
	}

	record, err = ns.mutate(ctx, record.ID, func(r *models.NotificationRecord) ([]models.AuditEntry, error) {
		if !r.EpisodeOpen {
			return nil, errUnchanged
		}
		r.EpisodeOpen = false
		r.UpdatedAt = ns.clock.Now()
		return nil, nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	if ns.broadcaster != nil {
		ns.broadcaster.BroadcastViolationCleared(models.WSViolationCleared{
			TrackerID: event.TrackerID,
			Geofence:  fence,
			Reason:    event.Type,
			ClearedAt: event.Timestamp,
		})
		ns.broadcastUpdate(ctx, ActionEpisodeClosed, record)
	}
	return nil
}

func (ns *NotificationService) Get(ctx context.Context, id string) (*models.NotificationRecord, error) {
	return ns.store.GetByID(ctx, id)
}

func (ns *NotificationService) List(ctx context.Context, query models.NotificationListQuery) ([]models.NotificationRecord, int64, error) {
	page, pageSize := utils.NormalizePage(query.Page, query.PageSize)

	return ns.store.List(ctx, models.NotificationFilter{
		Status:    models.NotificationStatus(query.Status),
		TrackerID: query.TrackerID,
		Skip:      int64(utils.CalculateOffset(page, pageSize)),
		Limit:     int64(pageSize),
	})
}

// MarkRead moves a pending record to read. ReadAt is written once; read
// and dismissed records are returned unchanged.
func (ns *NotificationService) MarkRead(ctx context.Context, id string) (*models.NotificationRecord, error) {
	record, err := ns.mutate(ctx, id, func(r *models.NotificationRecord) ([]models.AuditEntry, error) {
		if r.Status != models.NotificationPending {
			return nil, errUnchanged
		}
		now := ns.clock.Now()
		r.Status = models.NotificationRead
		if r.ReadAt == nil {
			r.ReadAt = &now
		}
		r.UpdatedAt = now
		return nil, nil
	})
	if errors.Is(err, errUnchanged) {
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	ns.broadcastUpdate(ctx, ActionMarkRead, record)
	return record, nil
}

func (ns *NotificationService) MarkAllRead(ctx context.Context) (int64, error) {
	modified, err := ns.store.MarkAllRead(ctx, ns.clock.Now())
	if err != nil {
		return 0, err
	}
	if modified > 0 {
		ns.broadcastUpdate(ctx, ActionMarkAllRead, nil)
	}
	return modified, nil
}

// Dismiss is terminal. Dismissing twice is a no-op.
func (ns *NotificationService) Dismiss(ctx context.Context, id string) (*models.NotificationRecord, error) {
	record, err := ns.mutate(ctx, id, func(r *models.NotificationRecord) ([]models.AuditEntry, error) {
		if r.Status == models.NotificationDismissed {
			return nil, errUnchanged
		}
		now := ns.clock.Now()
		r.Status = models.NotificationDismissed
		r.DismissedAt = &now
		r.UpdatedAt = now
		return nil, nil
	})
	if errors.Is(err, errUnchanged) {
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	ns.broadcastUpdate(ctx, ActionDismiss, record)
	return record, nil
}

// UpdateReportStatus records an investigation step. Each change appends one
// audit entry; a request that changes nothing returns ErrNoChanges.
func (ns *NotificationService) UpdateReportStatus(ctx context.Context, id string, req models.ReportStatusRequest) (*models.NotificationRecord, error) {
	if !req.ReportStatus.Valid() {
		return nil, utils.ErrInvalidReportStatus
	}

	var oldStatus models.ReportStatus
	record, err := ns.mutate(ctx, id, func(r *models.NotificationRecord) ([]models.AuditEntry, error) {
		oldStatus = r.ReportStatus
		if oldStatus == "" {
			oldStatus = models.ReportNotReported
		}
		oldRemarks := r.Remarks
		newRemarks := oldRemarks
		if req.Remarks != nil {
			newRemarks = strings.TrimSpace(*req.Remarks)
		}

		remarksChanged := newRemarks != oldRemarks
		if req.ReportStatus == oldStatus && !remarksChanged {
			return nil, utils.ErrNoChanges
		}

		now := ns.clock.Now()
		if n := len(r.AuditTrail); n > 0 && now.Before(r.AuditTrail[n-1].Timestamp) {
			// keep timestamp order equal to append order
			now = r.AuditTrail[n-1].Timestamp
		}

		r.ReportStatus = req.ReportStatus
		r.Remarks = newRemarks
		r.UpdatedAt = now
		return []models.AuditEntry{{
			Timestamp:      now,
			OldStatus:      oldStatus,
			NewStatus:      req.ReportStatus,
			OldRemarks:     oldRemarks,
			NewRemarks:     newRemarks,
			RemarksChanged: remarksChanged,
			UpdatedBy:      req.UpdatedBy,
		}}, nil
	})
	if errors.Is(err, utils.ErrNoChanges) {
		return record, err
	}
	if err != nil {
		return nil, err
	}

	logrus.Infof("Report %s status: %s -> %s", record.ReportNumber, oldStatus.Label(), req.ReportStatus.Label())
	ns.broadcastUpdate(ctx, ActionReportStatus, record)
	return record, nil
}

// mutate applies change to a fresh copy of the record and writes it back.
// A concurrent write in between makes the store reject the update, and the
// change is reapplied on top of the newer copy. Errors from change are
// returned with the record they saw.
func (ns *NotificationService) mutate(ctx context.Context, id string, change func(r *models.NotificationRecord) ([]models.AuditEntry, error)) (*models.NotificationRecord, error) {
	for attempt := 1; ; attempt++ {
		record, err := ns.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		audit, err := change(record)
		if err != nil {
			return record, err
		}

		err = ns.store.Update(ctx, record, audit...)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, utils.ErrStaleNotification) || attempt >= maxUpdateAttempts {
			return nil, err
		}
		logrus.Debugf("Notification %s changed concurrently, retrying (attempt %d)", id, attempt)
	}
}

// AuditTrail returns the record's audit entries in timestamp order
func (ns *NotificationService) AuditTrail(ctx context.Context, id string) ([]models.AuditEntry, error) {
	record, err := ns.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sortedAudit(record.AuditTrail), nil
}

// ReplayAudit rebuilds report status and remarks from an audit trail alone.
func ReplayAudit(entries []models.AuditEntry) (models.ReportStatus, string) {
	status := models.ReportNotReported
	remarks := ""
	for _, entry := range sortedAudit(entries) {
		status = entry.NewStatus
		remarks = entry.NewRemarks
	}
	return status, remarks
}

func sortedAudit(entries []models.AuditEntry) []models.AuditEntry {
	out := append([]models.AuditEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (ns *NotificationService) UnreadCount(ctx context.Context) (int64, error) {
	return ns.store.CountUnread(ctx)
}

func (ns *NotificationService) Statistics(ctx context.Context) (*models.NotificationStats, error) {
	records, total, err := ns.store.List(ctx, models.NotificationFilter{})
	if err != nil {
		return nil, err
	}

	stats := &models.NotificationStats{
		Total:          total,
		ByStatus:       make(map[string]int64),
		ByReportStatus: make(map[string]int64),
	}
	for _, rs := range models.ReportStatuses {
		stats.ByReportStatus[string(rs)] = 0
	}

	for i := range records {
		r := &records[i]
		stats.ByStatus[string(r.Status)]++
		stats.ByReportStatus[string(r.ReportStatus)]++
		if r.IsUnread() {
			stats.Unread++
		}
		if r.EpisodeOpen && r.Status != models.NotificationDismissed {
			stats.ActiveEpisodes++
		}
	}

	if len(records) > 5 {
		stats.Recent = records[:5]
	} else {
		stats.Recent = records
	}
	return stats, nil
}

// ActiveViolations lists records whose idle episode is still in progress
func (ns *NotificationService) ActiveViolations(ctx context.Context) ([]models.NotificationRecord, error) {
	records, _, err := ns.store.List(ctx, models.NotificationFilter{})
	if err != nil {
		return nil, err
	}

	active := []models.NotificationRecord{}
	for _, r := range records {
		if r.EpisodeOpen && r.Status != models.NotificationDismissed {
			active = append(active, r)
		}
	}
	return active, nil
}

func (ns *NotificationService) lookupVessel(ctx context.Context, trackerID string) (*models.VesselInfo, bool) {
	if ns.vessels == nil {
		return nil, false
	}
	return ns.vessels.Lookup(ctx, trackerID)
}

func (ns *NotificationService) broadcastUpdate(ctx context.Context, action string, record *models.NotificationRecord) {
	if ns.broadcaster == nil {
		return
	}

	update := models.WSNotificationUpdate{Action: action}
	if record != nil {
		cp := *record
		update.NotificationID = record.ID
		update.Record = &cp
	}
	if count, err := ns.store.CountUnread(ctx); err == nil {
		update.UnreadCount = count
	} else {
		logrus.Warnf("Failed to count unread notifications: %v", err)
	}

	ns.broadcaster.BroadcastNotificationUpdate(update)
}

func violationMessage(r *models.NotificationRecord) string {
	subject := r.TrackerID
	if r.BoatName != "" {
		subject = r.BoatName
		if r.MFBRNumber != "" {
			subject = fmt.Sprintf("%s (%s)", r.BoatName, r.MFBRNumber)
		}
	}

	msg := fmt.Sprintf("%s has been idle in %s for %.0f minutes", subject, r.ToArea, r.DwellMinutes)
	if r.FromArea != "" && r.FromArea != r.ToArea {
		msg += fmt.Sprintf(" (from %s)", r.FromArea)
	}
	if r.OwnerName != "" {
		msg += fmt.Sprintf(". Owner: %s", r.OwnerName)
	}
	return msg
}
