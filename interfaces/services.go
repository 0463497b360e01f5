package interfaces

import (
	"context"
	"time"
	"vesselwatch/models"
)

// EventLog is the append-only store of domain events
type EventLog interface {
	// Append assigns sequence numbers and stores the events in order
	Append(ctx context.Context, events ...models.DomainEvent) ([]models.DomainEvent, error)
	History(ctx context.Context, trackerID string, limit int) ([]models.DomainEvent, error)
	Since(ctx context.Context, afterSequence int64, limit int) ([]models.DomainEvent, error)
	LastSequence(ctx context.Context) (int64, error)
}

// EventPublisher fans appended domain events out to consumers
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []models.DomainEvent) error
}

// EventRecorder appends events to the log and fans them out in sequence order
type EventRecorder interface {
	Record(ctx context.Context, events []models.DomainEvent) ([]models.DomainEvent, error)
}

// EventHandler consumes domain events in delivery order
type EventHandler interface {
	HandleEvent(ctx context.Context, event models.DomainEvent) error
}

// WebSocket broadcaster interface for services to use
type WebSocketBroadcaster interface {
	BroadcastDomainEvent(event models.DomainEvent)
	BroadcastGPSUpdate(summary models.TrackerSummary)
	BroadcastBoundaryNotification(record models.NotificationRecord)
	BroadcastNotificationUpdate(update models.WSNotificationUpdate)
	BroadcastViolationCleared(cleared models.WSViolationCleared)
	BroadcastAttentionCue(cue models.WSAttentionCue)
	ClientCount() int
}

// NotificationStore persists notification records
type NotificationStore interface {
	Create(ctx context.Context, record *models.NotificationRecord) error
	GetByID(ctx context.Context, id string) (*models.NotificationRecord, error)
	GetBySourceEvent(ctx context.Context, eventID string) (*models.NotificationRecord, error)
	FindOpenEpisode(ctx context.Context, trackerID, toArea string) (*models.NotificationRecord, error)
	// Update writes the lifecycle fields and appends audit entries only if
	// the stored version still equals record.Version, otherwise it returns
	// ErrStaleNotification. On success record carries the new version and trail.
	Update(ctx context.Context, record *models.NotificationRecord, audit ...models.AuditEntry) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationRecord, int64, error)
	MarkAllRead(ctx context.Context, readAt time.Time) (int64, error)
	CountUnread(ctx context.Context) (int64, error)
	NextReportSequence(ctx context.Context, year int) (int64, error)
}

// VesselDirectory looks up registry metadata for a tracker
type VesselDirectory interface {
	Lookup(ctx context.Context, trackerID string) (*models.VesselInfo, bool)
}

type SMSService interface {
	SendSMS(ctx context.Context, phone, message string) error
}

type PushService interface {
	SendTopic(ctx context.Context, topic, title, body string, data map[string]string) error
	SendToDevice(ctx context.Context, token, title, body string, data map[string]string) error
}

// DedupStore decides whether an alert key should be presented to the user
type DedupStore interface {
	// ShouldPresent records key at now and reports whether no presentation
	// happened for it within the suppression window
	ShouldPresent(ctx context.Context, key string, now time.Time) (bool, error)
	Prune(now time.Time) int
}

// CuePlayer produces an audible alert
type CuePlayer interface {
	PlayAsset(ctx context.Context, asset string) error
	PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error
}

// PositionIngestor accepts samples for asynchronous processing by the tracker lanes
type PositionIngestor interface {
	Submit(sample models.PositionSample) error
}

// TrackerStateProvider exposes read-only tracker snapshots
type TrackerStateProvider interface {
	Summaries() []models.TrackerSummary
	Geofences() []models.Geofence
}

type UnreadCounter interface {
	UnreadCount(ctx context.Context) (int64, error)
}

// OwnerNotifier reaches the registered owner of a vessel outside the dashboard
type OwnerNotifier interface {
	NotifyViolation(ctx context.Context, record models.NotificationRecord, vessel *models.VesselInfo) error
}
