// models/websocket.go
package models

import (
	"encoding/json"
	"time"
)

// WebSocket Message Types
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	TrackerID string      `json:"trackerId,omitempty"`
	Sequence  int64       `json:"sequence,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

// WSEnvelope is the receive-side view of a WSMessage with the payload left undecoded
type WSEnvelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	TrackerID string          `json:"trackerId,omitempty"`
	Sequence  int64           `json:"sequence,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// WebSocket Request Types
type WSRequest struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

type WSError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WSNotificationUpdate announces a lifecycle change of a notification record
type WSNotificationUpdate struct {
	NotificationID string              `json:"notificationId"`
	Action         string              `json:"action"` // mark_read, mark_all_read, dismiss, report_status
	Record         *NotificationRecord `json:"record,omitempty"`
	UnreadCount    int64               `json:"unreadCount"`
}

// WSViolationCleared is sent when a violating vessel moves on or leaves the fence
type WSViolationCleared struct {
	TrackerID string    `json:"trackerId"`
	Geofence  string    `json:"geofence"`
	Reason    EventType `json:"reason"`
	ClearedAt time.Time `json:"clearedAt"`
}

// WSAttentionCue asks connected dashboards to play an alert sound
type WSAttentionCue struct {
	Mode        string  `json:"mode"` // asset, tone
	Asset       string  `json:"asset,omitempty"`
	FrequencyHz float64 `json:"frequencyHz,omitempty"`
	DurationMs  int64   `json:"durationMs,omitempty"`
}

// WSInitialData is sent once after a client connects
type WSInitialData struct {
	ClientID     string           `json:"clientId"`
	Trackers     []TrackerSummary `json:"trackers"`
	Geofences    []Geofence       `json:"geofences"`
	LastSequence int64            `json:"lastSequence"`
	UnreadCount  int64            `json:"unreadCount"`
}

// WebSocket Event Constants
const (
	// WebSocket message types
	WSTypeInitialData          = "initial_data"
	WSTypeGPSUpdate            = "gps_update"
	WSTypeDomainEvent          = "domain_event"
	WSTypeBoundaryNotification = "boundary_notification"
	WSTypeNotificationUpdate   = "notification_update"
	WSTypeViolationCleared     = "violation_cleared"
	WSTypeAttentionCue         = "attention_cue"
	WSTypeReplayComplete       = "replay_complete"
	WSTypePing                 = "ping"
	WSTypePong                 = "pong"
	WSTypeError                = "error"
	WSTypeSuccess              = "success"

	// WebSocket request types
	WSRequestResume      = "resume"
	WSRequestSubscribe   = "subscribe"
	WSRequestUnsubscribe = "unsubscribe"
	WSRequestPosition    = "position_report"

	// Connection states
	WSStatusConnected    = "connected"
	WSStatusDisconnected = "disconnected"
	WSStatusReconnecting = "reconnecting"

	// Error codes
	WSErrorInvalidMessage  = "INVALID_MESSAGE"
	WSErrorRateLimit       = "RATE_LIMIT"
	WSErrorInvalidLocation = "INVALID_LOCATION"
	WSErrorReplayFailed    = "REPLAY_FAILED"
)

// WebSocket Hub Stats
type WSHubStats struct {
	TotalConnections  int64     `json:"totalConnections"`
	ActiveConnections int       `json:"activeConnections"`
	MessagesSent      int64     `json:"messagesSent"`
	MessagesDropped   int64     `json:"messagesDropped"`
	EventsReplayed    int64     `json:"eventsReplayed"`
	LastActivity      time.Time `json:"lastActivity"`
}
