package models

import (
	"time"
)

type EventType string

const (
	EventConnectivityOnline       EventType = "connectivity_online"
	EventConnectivityOffline      EventType = "connectivity_offline"
	EventConnectivityReconnecting EventType = "connectivity_reconnecting"
	EventGeofenceEnter            EventType = "geofence_enter"
	EventGeofenceExit             EventType = "geofence_exit"
	EventIdleStart                EventType = "idle_start"
	EventIdleResume               EventType = "idle_resume"
	EventViolation                EventType = "violation"
)

var AllEventTypes = []EventType{
	EventConnectivityOnline,
	EventConnectivityOffline,
	EventConnectivityReconnecting,
	EventGeofenceEnter,
	EventGeofenceExit,
	EventIdleStart,
	EventIdleResume,
	EventViolation,
}

func (t EventType) Valid() bool {
	for _, et := range AllEventTypes {
		if et == t {
			return true
		}
	}
	return false
}

// EventFields holds the optional structured payload of a DomainEvent
type EventFields struct {
	Geofence      string    `json:"geofence,omitempty" bson:"geofence,omitempty"`
	Direction     string    `json:"direction,omitempty" bson:"direction,omitempty"` // enter, exit
	FromArea      string    `json:"fromArea,omitempty" bson:"fromArea,omitempty"`
	ToArea        string    `json:"toArea,omitempty" bson:"toArea,omitempty"`
	DwellSeconds  float64   `json:"dwellSeconds,omitempty" bson:"dwellSeconds,omitempty"`
	MovedMeters   float64   `json:"movedMeters,omitempty" bson:"movedMeters,omitempty"`
	Heading       string    `json:"heading,omitempty" bson:"heading,omitempty"`
	Position      *GeoPoint `json:"position,omitempty" bson:"position,omitempty"`
	IdleSince     time.Time `json:"idleSince,omitempty" bson:"idleSince,omitempty"`
	OutageSeconds float64   `json:"outageSeconds,omitempty" bson:"outageSeconds,omitempty"`
	MissedBeats   int       `json:"missedBeats,omitempty" bson:"missedBeats,omitempty"`
}

// DomainEvent is an immutable fact emitted by a tracker state machine.
// Sequence is assigned by the event log when the event is appended.
type DomainEvent struct {
	ID        string      `json:"id" bson:"_id"`
	Sequence  int64       `json:"sequence" bson:"sequence"`
	TrackerID string      `json:"trackerId" bson:"trackerId"`
	Type      EventType   `json:"type" bson:"type"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Message   string      `json:"message" bson:"message"`
	Fields    EventFields `json:"fields" bson:"fields"`
}

func (e DomainEvent) IsViolation() bool {
	return e.Type == EventViolation
}

// EndsEpisode reports whether the event closes an idle episode
func (e DomainEvent) EndsEpisode() bool {
	return e.Type == EventIdleResume || e.Type == EventGeofenceExit
}

// EventHistoryQuery is the query string for tracker history requests
type EventHistoryQuery struct {
	Limit int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Type  string `form:"type" binding:"omitempty"`
}
