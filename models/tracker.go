package models

import (
	"sort"
	"time"
)

type ConnectivityStatus string

const (
	ConnectivityOnline       ConnectivityStatus = "online"
	ConnectivityOffline      ConnectivityStatus = "offline"
	ConnectivityReconnecting ConnectivityStatus = "reconnecting"
)

func (s ConnectivityStatus) Valid() bool {
	switch s {
	case ConnectivityOnline, ConnectivityOffline, ConnectivityReconnecting:
		return true
	}
	return false
}

// IdlePhase is the idle sub-state of a tracker inside one fence
type IdlePhase string

const (
	IdlePhaseNotIdle  IdlePhase = "not_idle"
	IdlePhaseIdle     IdlePhase = "idle"
	IdlePhaseViolated IdlePhase = "violated"
)

// IdleState is a tagged variant: Since is only meaningful when Phase is Idle or Violated.
type IdleState struct {
	Phase IdlePhase `json:"phase" bson:"phase"`
	Since time.Time `json:"since,omitempty" bson:"since,omitempty"`
}

func NotIdle() IdleState {
	return IdleState{Phase: IdlePhaseNotIdle}
}

func IdleSince(t time.Time) IdleState {
	return IdleState{Phase: IdlePhaseIdle, Since: t}
}

func (s IdleState) Active() bool {
	return s.Phase == IdlePhaseIdle || s.Phase == IdlePhaseViolated
}

// Latched reports whether the episode already fired its violation
func (s IdleState) Latched() bool {
	return s.Phase == IdlePhaseViolated
}

// Dwell returns how long the episode has lasted at now
func (s IdleState) Dwell(now time.Time) time.Duration {
	if !s.Active() {
		return 0
	}
	return now.Sub(s.Since)
}

// FenceState is a tracker's containment and idle state for a single geofence
type FenceState struct {
	Inside bool      `json:"inside" bson:"inside"`
	Idle   IdleState `json:"idle" bson:"idle"`
}

// Tracker is the detection state of a single vessel
type Tracker struct {
	ID               string                 `json:"id" bson:"_id"`
	Position         *GeoPoint              `json:"position,omitempty" bson:"position,omitempty"`
	PreviousPosition *GeoPoint              `json:"previousPosition,omitempty" bson:"previousPosition,omitempty"`
	Connectivity     ConnectivityStatus     `json:"connectivity" bson:"connectivity"`
	Fences           map[string]*FenceState `json:"fences" bson:"fences"`
	HomeArea         string                 `json:"homeArea,omitempty" bson:"homeArea,omitempty"`
	LastArea         string                 `json:"lastArea,omitempty" bson:"lastArea,omitempty"`
	LastSeen         time.Time              `json:"lastSeen" bson:"lastSeen"`
	LastProcessed    time.Time              `json:"lastProcessed,omitempty" bson:"lastProcessed,omitempty"`
	OfflineSince     time.Time              `json:"offlineSince,omitempty" bson:"offlineSince,omitempty"`
	SampleCount      int64                  `json:"sampleCount" bson:"sampleCount"`
	CreatedAt        time.Time              `json:"createdAt" bson:"createdAt"`
}

// NewTracker creates a tracker in its initial state: online and not idle anywhere
func NewTracker(id string, now time.Time) *Tracker {
	return &Tracker{
		ID:           id,
		Connectivity: ConnectivityOnline,
		Fences:       make(map[string]*FenceState),
		LastSeen:     now,
		CreatedAt:    now,
	}
}

// Fence returns the state for a named fence, creating it on first use
func (t *Tracker) Fence(name string) *FenceState {
	if t.Fences == nil {
		t.Fences = make(map[string]*FenceState)
	}
	fs, ok := t.Fences[name]
	if !ok {
		fs = &FenceState{Idle: NotIdle()}
		t.Fences[name] = fs
	}
	return fs
}

// Origin is the area a violation is attributed as coming from
func (t *Tracker) Origin() string {
	if t.HomeArea != "" {
		return t.HomeArea
	}
	return t.LastArea
}

// Snapshot returns a deep copy that is safe to hand to other goroutines
func (t *Tracker) Snapshot() Tracker {
	cp := *t
	if t.Position != nil {
		p := *t.Position
		cp.Position = &p
	}
	if t.PreviousPosition != nil {
		p := *t.PreviousPosition
		cp.PreviousPosition = &p
	}
	cp.Fences = make(map[string]*FenceState, len(t.Fences))
	for name, fs := range t.Fences {
		f := *fs
		cp.Fences[name] = &f
	}
	return cp
}

// PositionSample is a single position report from a vessel
type PositionSample struct {
	TrackerID        string             `json:"trackerId" bson:"trackerId"`
	Latitude         float64            `json:"latitude" bson:"latitude"`
	Longitude        float64            `json:"longitude" bson:"longitude"`
	Timestamp        time.Time          `json:"timestamp" bson:"timestamp"`
	ConnectivityHint ConnectivityStatus `json:"connectivityHint,omitempty" bson:"connectivityHint,omitempty"`
	Source           string             `json:"source,omitempty" bson:"source,omitempty"` // api, mqtt, simulator
}

func (s PositionSample) Point() GeoPoint {
	return GeoPoint{Latitude: s.Latitude, Longitude: s.Longitude}
}

// PositionRequest is the REST payload for position ingest
type PositionRequest struct {
	TrackerID        string     `json:"trackerId" binding:"required,max=64"`
	Latitude         *float64   `json:"latitude" binding:"required,latitude"`
	Longitude        *float64   `json:"longitude" binding:"required,longitude"`
	Timestamp        *time.Time `json:"timestamp,omitempty"`
	ConnectivityHint string     `json:"connectivityHint,omitempty" binding:"omitempty,oneof=online offline reconnecting"`
}

type PositionBatchRequest struct {
	Samples []PositionRequest `json:"samples" binding:"required,min=1,max=500,dive"`
}

// TrackerSummary is the read model served to dashboards
type TrackerSummary struct {
	ID           string             `json:"id"`
	Position     *GeoPoint          `json:"position,omitempty"`
	Connectivity ConnectivityStatus `json:"connectivity"`
	LastSeen     time.Time          `json:"lastSeen"`
	InsideFences []string           `json:"insideFences"`
	IdleFences   map[string]string  `json:"idleFences,omitempty"`
	SampleCount  int64              `json:"sampleCount"`
}

func (t *Tracker) Summary() TrackerSummary {
	s := TrackerSummary{
		ID:           t.ID,
		Connectivity: t.Connectivity,
		LastSeen:     t.LastSeen,
		InsideFences: []string{},
		SampleCount:  t.SampleCount,
	}
	if t.Position != nil {
		p := *t.Position
		s.Position = &p
	}
	for name, fs := range t.Fences {
		if fs.Inside {
			s.InsideFences = append(s.InsideFences, name)
		}
		if fs.Idle.Active() {
			if s.IdleFences == nil {
				s.IdleFences = make(map[string]string)
			}
			s.IdleFences[name] = string(fs.Idle.Phase)
		}
	}
	sort.Strings(s.InsideFences)
	return s
}
