package models

import (
	"time"
)

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationRead      NotificationStatus = "read"
	NotificationDismissed NotificationStatus = "dismissed"
)

type ReportStatus string

const (
	ReportNotReported        ReportStatus = "not_reported"
	ReportUnderInvestigation ReportStatus = "under_investigation"
	ReportFisherfolkReported ReportStatus = "fisherfolk_reported"
	ReportResolved           ReportStatus = "resolved"
)

var ReportStatuses = []ReportStatus{
	ReportNotReported,
	ReportUnderInvestigation,
	ReportFisherfolkReported,
	ReportResolved,
}

func (s ReportStatus) Valid() bool {
	for _, rs := range ReportStatuses {
		if rs == s {
			return true
		}
	}
	return false
}

// Label is the human readable form used in audit messages
func (s ReportStatus) Label() string {
	switch s {
	case ReportNotReported:
		return "Not Reported"
	case ReportUnderInvestigation:
		return "Under Investigation"
	case ReportFisherfolkReported:
		return "Fisherfolk Reported"
	case ReportResolved:
		return "Resolved"
	}
	return string(s)
}

// AuditEntry is one immutable step of a record's report-status history
type AuditEntry struct {
	Timestamp      time.Time    `json:"timestamp" bson:"timestamp"`
	OldStatus      ReportStatus `json:"oldStatus" bson:"oldStatus"`
	NewStatus      ReportStatus `json:"newStatus" bson:"newStatus"`
	OldRemarks     string       `json:"oldRemarks" bson:"oldRemarks"`
	NewRemarks     string       `json:"newRemarks" bson:"newRemarks"`
	RemarksChanged bool         `json:"remarksChanged" bson:"remarksChanged"`
	UpdatedBy      string       `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
}

// NotificationRecord is the consumer-side record of one violation
type NotificationRecord struct {
	ID            string `json:"id" bson:"_id"`
	ReportNumber  string `json:"reportNumber" bson:"reportNumber"`
	SourceEventID string `json:"sourceEventId" bson:"sourceEventId"`
	TrackerID     string `json:"trackerId" bson:"trackerId"`

	// Route
	FromArea     string    `json:"fromArea" bson:"fromArea"`
	ToArea       string    `json:"toArea" bson:"toArea"`
	DwellMinutes float64   `json:"dwellMinutes" bson:"dwellMinutes"`
	Position     GeoPoint  `json:"position" bson:"position"`
	IdleSince    time.Time `json:"idleSince" bson:"idleSince"`
	ViolationAt  time.Time `json:"violationAt" bson:"violationAt"`

	// Enrichment
	BoatName   string `json:"boatName,omitempty" bson:"boatName,omitempty"`
	MFBRNumber string `json:"mfbrNumber,omitempty" bson:"mfbrNumber,omitempty"`
	OwnerName  string `json:"ownerName,omitempty" bson:"ownerName,omitempty"`
	Message    string `json:"message" bson:"message"`

	// Lifecycle
	Status       NotificationStatus `json:"status" bson:"status"`
	ReadAt       *time.Time         `json:"readAt,omitempty" bson:"readAt,omitempty"`
	DismissedAt  *time.Time         `json:"dismissedAt,omitempty" bson:"dismissedAt,omitempty"`
	ReportStatus ReportStatus       `json:"reportStatus" bson:"reportStatus"`
	Remarks      string             `json:"remarks" bson:"remarks"`
	AuditTrail   []AuditEntry       `json:"auditTrail" bson:"auditTrail"`
	EpisodeOpen  bool               `json:"episodeOpen" bson:"episodeOpen"`

	// Version counts writes; updates only land on the version they read
	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// IsUnread matches the unread badge: pending and never opened
func (n *NotificationRecord) IsUnread() bool {
	return n.Status == NotificationPending && n.ReadAt == nil
}

type ReportStatusRequest struct {
	ReportStatus ReportStatus `json:"reportStatus" binding:"required,report_status"`
	Remarks      *string      `json:"remarks,omitempty" binding:"omitempty,max=2000"`
	UpdatedBy    string       `json:"updatedBy,omitempty" binding:"omitempty,max=128"`
}

type NotificationListQuery struct {
	Status    string `form:"status" binding:"omitempty,oneof=pending read dismissed"`
	TrackerID string `form:"trackerId" binding:"omitempty,max=64"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" binding:"omitempty,min=1,max=100"`
}

// NotificationFilter is the repository-level list filter
type NotificationFilter struct {
	Status    NotificationStatus
	TrackerID string
	Skip      int64
	Limit     int64
}

type NotificationStats struct {
	Total          int64                `json:"total"`
	Unread         int64                `json:"unread"`
	ByStatus       map[string]int64     `json:"byStatus"`
	ByReportStatus map[string]int64     `json:"byReportStatus"`
	ActiveEpisodes int64                `json:"activeEpisodes"`
	Recent         []NotificationRecord `json:"recent,omitempty"`
}
