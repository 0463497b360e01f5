package services

import (
	"context"
	"sync"
	"time"
	"vesselwatch/models"
)

// recordingBroadcaster captures hub traffic
type recordingBroadcaster struct {
	mu            sync.Mutex
	events        []models.DomainEvent
	gps           []models.TrackerSummary
	notifications []models.NotificationRecord
	updates       []models.WSNotificationUpdate
	cleared       []models.WSViolationCleared
	cues          []models.WSAttentionCue
	clients       int
}

func (b *recordingBroadcaster) BroadcastDomainEvent(event models.DomainEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) BroadcastGPSUpdate(summary models.TrackerSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gps = append(b.gps, summary)
}

func (b *recordingBroadcaster) BroadcastBoundaryNotification(record models.NotificationRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifications = append(b.notifications, record)
}

func (b *recordingBroadcaster) BroadcastNotificationUpdate(update models.WSNotificationUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, update)
}

func (b *recordingBroadcaster) BroadcastViolationCleared(cleared models.WSViolationCleared) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared = append(b.cleared, cleared)
}

func (b *recordingBroadcaster) BroadcastAttentionCue(cue models.WSAttentionCue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cues = append(b.cues, cue)
}

func (b *recordingBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients
}

func (b *recordingBroadcaster) updateActions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	actions := make([]string, 0, len(b.updates))
	for _, u := range b.updates {
		actions = append(actions, u.Action)
	}
	return actions
}

type staticVessels map[string]models.VesselInfo

func (s staticVessels) Lookup(ctx context.Context, trackerID string) (*models.VesselInfo, bool) {
	v, ok := s[trackerID]
	if !ok {
		return nil, false
	}
	return &v, true
}

type ownerCall struct {
	record models.NotificationRecord
	vessel *models.VesselInfo
}

type fakeOwners struct {
	calls chan ownerCall
}

func newFakeOwners() *fakeOwners {
	return &fakeOwners{calls: make(chan ownerCall, 8)}
}

func (f *fakeOwners) NotifyViolation(ctx context.Context, record models.NotificationRecord, vessel *models.VesselInfo) error {
	f.calls <- ownerCall{record: record, vessel: vessel}
	return nil
}

// scriptedPlayer fails the modes it is told to fail and records what played
type scriptedPlayer struct {
	mu        sync.Mutex
	failAsset bool
	failTone  bool
	played    []string
}

func (p *scriptedPlayer) PlayAsset(ctx context.Context, asset string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAsset {
		return ErrCueUnavailable
	}
	p.played = append(p.played, "asset:"+asset)
	return nil
}

func (p *scriptedPlayer) PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTone {
		return ErrCueUnavailable
	}
	p.played = append(p.played, "tone")
	return nil
}

func (p *scriptedPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// stalledPlayer holds every asset playback until released
type stalledPlayer struct {
	scriptedPlayer
	release chan struct{}
}

func (p *stalledPlayer) PlayAsset(ctx context.Context, asset string) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.scriptedPlayer.PlayAsset(ctx, asset)
}

func violationEvent(id, trackerID string, at time.Time) models.DomainEvent {
	return models.DomainEvent{
		ID:        id,
		TrackerID: trackerID,
		Type:      models.EventViolation,
		Timestamp: at,
		Message:   trackerID + " idle in San Juan",
		Fields: models.EventFields{
			Geofence:     "San Juan",
			FromArea:     "San Fernando",
			ToArea:       "San Juan",
			DwellSeconds: 900,
			IdleSince:    at.Add(-15 * time.Minute),
			Position:     &models.GeoPoint{Latitude: 16.6730, Longitude: 120.3447},
		},
	}
}
