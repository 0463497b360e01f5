package services

import (
	"fmt"
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DetectionConfig holds the tunables of the tracker state machine
type DetectionConfig struct {
	IdleDriftMeters         float64
	IdleThreshold           time.Duration
	HeartbeatInterval       time.Duration
	OfflineAfterMissed      int
	ReconnectingAfterMissed int
}

// DefaultDetectionConfig returns production settings: 25 m drift, 15 minute dwell,
// offline after 8 missed minutes and reconnecting after 10.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		IdleDriftMeters:         25,
		IdleThreshold:           15 * time.Minute,
		HeartbeatInterval:       time.Minute,
		OfflineAfterMissed:      8,
		ReconnectingAfterMissed: 10,
	}
}

// TestModeDetectionConfig shortens the dwell threshold for simulations
func TestModeDetectionConfig() DetectionConfig {
	cfg := DefaultDetectionConfig()
	cfg.IdleThreshold = time.Minute
	return cfg
}

// TrackerMachine applies position samples and connectivity signals to trackers.
// It holds no per-tracker state; callers own the Tracker and must serialise
// calls for the same tracker.
type TrackerMachine struct {
	cfg    DetectionConfig
	fences []models.Geofence
	clock  utils.Clock
	newID  func() string
}

func NewTrackerMachine(cfg DetectionConfig, fences []models.Geofence, clock utils.Clock) *TrackerMachine {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	fs := make([]models.Geofence, len(fences))
	copy(fs, fences)

	return &TrackerMachine{
		cfg:    cfg,
		fences: fs,
		clock:  clock,
		newID:  func() string { return uuid.New().String() },
	}
}

func (m *TrackerMachine) Config() DetectionConfig {
	return m.cfg
}

func (m *TrackerMachine) Geofences() []models.Geofence {
	fs := make([]models.Geofence, len(m.fences))
	copy(fs, m.fences)
	return fs
}

// ApplySample runs one position sample through the tracker.
// Samples with invalid coordinates return ErrMalformedSample and leave the tracker untouched.
func (m *TrackerMachine) ApplySample(t *models.Tracker, s models.PositionSample) ([]models.DomainEvent, error) {
	if !utils.IsValidCoordinate(s.Latitude, s.Longitude) {
		logrus.WithFields(logrus.Fields{
			"tracker_id": t.ID,
			"latitude":   s.Latitude,
			"longitude":  s.Longitude,
			"source":     s.Source,
		}).Warn("Rejected malformed position sample")
		return nil, utils.ErrMalformedSample
	}

	now := s.Timestamp
	if now.IsZero() {
		now = m.clock.Now()
	}

	// A report without a hint proves the link is up
	hint := s.ConnectivityHint
	if hint == "" {
		hint = models.ConnectivityOnline
	}
	if !hint.Valid() {
		logrus.WithFields(logrus.Fields{
			"tracker_id": t.ID,
			"hint":       hint,
		}).Debug("Unknown connectivity hint, treating sample as online")
		hint = models.ConnectivityOnline
	}

	events := m.transition(t, hint, now, now, 0)
	if t.Connectivity != models.ConnectivityOnline {
		// heard from, but position and dwell stay frozen until it is back online
		if now.After(t.LastSeen) {
			t.LastSeen = now
		}
		return events, nil
	}

	current := s.Point()
	moved := 0.0
	if t.Position != nil {
		moved = utils.DistanceMeters(*t.Position, current)
	}

	t.PreviousPosition = t.Position
	t.Position = &current
	t.LastSeen = now
	t.LastProcessed = now
	t.SampleCount++

	for _, fence := range m.fences {
		fs := t.Fence(fence.Name)
		inside := utils.IsInside(current, fence)

		if inside != fs.Inside {
			fs.Inside = inside
			fs.Idle = models.NotIdle()
			if !fence.Watched {
				t.LastArea = fence.Name
			}
			events = append(events, m.edgeEvent(t, fence, inside, moved, now))
			continue
		}

		if !inside {
			fs.Idle = models.NotIdle()
			continue
		}

		if fence.Watched {
			events = append(events, m.evaluateIdle(t, fence, fs, moved, now)...)
		}
	}

	return events, nil
}

// ApplyConnectivity forces a connectivity status, emitting the matching events
func (m *TrackerMachine) ApplyConnectivity(t *models.Tracker, status models.ConnectivityStatus, now time.Time) []models.DomainEvent {
	return m.transition(t, status, now, now, 0)
}

// CheckHeartbeat escalates connectivity for a tracker that stopped reporting.
// An online tracker goes offline after OfflineAfterMissed silent intervals and an
// offline one starts reconnecting after ReconnectingAfterMissed.
func (m *TrackerMachine) CheckHeartbeat(t *models.Tracker, now time.Time) []models.DomainEvent {
	interval := m.cfg.HeartbeatInterval
	if interval <= 0 || t.LastSeen.IsZero() {
		return nil
	}

	missed := int(now.Sub(t.LastSeen) / interval)

	switch t.Connectivity {
	case models.ConnectivityOnline:
		if missed >= m.cfg.OfflineAfterMissed {
			// the outage started when the tracker went quiet, not when we noticed
			return m.transition(t, models.ConnectivityOffline, now, t.LastSeen, missed)
		}
	case models.ConnectivityOffline:
		if missed >= m.cfg.ReconnectingAfterMissed {
			return m.transition(t, models.ConnectivityReconnecting, now, now, missed)
		}
	}
	return nil
}

func (m *TrackerMachine) transition(t *models.Tracker, status models.ConnectivityStatus, now, since time.Time, missed int) []models.DomainEvent {
	if status == t.Connectivity {
		return nil
	}

	var events []models.DomainEvent
	prev := t.Connectivity

	switch status {
	case models.ConnectivityOffline:
		if prev == models.ConnectivityOnline {
			t.OfflineSince = since
		}
		t.Connectivity = models.ConnectivityOffline
		events = append(events, m.newEvent(t, models.EventConnectivityOffline, now,
			fmt.Sprintf("Tracker %s went offline", t.ID),
			models.EventFields{MissedBeats: missed}))

	case models.ConnectivityReconnecting:
		if prev == models.ConnectivityOnline {
			events = append(events, m.transition(t, models.ConnectivityOffline, now, since, missed)...)
		}
		t.Connectivity = models.ConnectivityReconnecting
		events = append(events, m.newEvent(t, models.EventConnectivityReconnecting, now,
			fmt.Sprintf("Tracker %s is reconnecting", t.ID),
			models.EventFields{MissedBeats: missed}))

	case models.ConnectivityOnline:
		outage := time.Duration(0)
		if !t.OfflineSince.IsZero() && now.After(t.OfflineSince) {
			outage = now.Sub(t.OfflineSince)
		}

		// Offline time never counts as dwell: open idle episodes are shifted
		// forward by the outage. A latched violation stays latched.
		for _, fs := range t.Fences {
			if fs.Idle.Phase == models.IdlePhaseIdle && outage > 0 {
				fs.Idle.Since = fs.Idle.Since.Add(outage)
			}
		}

		t.Connectivity = models.ConnectivityOnline
		t.OfflineSince = time.Time{}
		t.LastSeen = now
		events = append(events, m.newEvent(t, models.EventConnectivityOnline, now,
			fmt.Sprintf("Tracker %s is back online", t.ID),
			models.EventFields{OutageSeconds: outage.Seconds()}))
	}

	return events
}

func (m *TrackerMachine) edgeEvent(t *models.Tracker, fence models.Geofence, inside bool, moved float64, now time.Time) models.DomainEvent {
	eventType := models.EventGeofenceExit
	direction := "exit"
	verb := "left"
	if inside {
		eventType = models.EventGeofenceEnter
		direction = "enter"
		verb = "entered"
	}

	pos := *t.Position
	heading := ""
	if t.PreviousPosition != nil && moved > 0 {
		heading = utils.CalculateHeading(utils.BearingDegrees(*t.PreviousPosition, pos))
	}

	return m.newEvent(t, eventType, now,
		fmt.Sprintf("Tracker %s %s %s", t.ID, verb, fence.Name),
		models.EventFields{
			Geofence:    fence.Name,
			Direction:   direction,
			FromArea:    t.Origin(),
			ToArea:      fence.Name,
			MovedMeters: moved,
			Heading:     heading,
			Position:    &pos,
		})
}

func (m *TrackerMachine) evaluateIdle(t *models.Tracker, fence models.Geofence, fs *models.FenceState, moved float64, now time.Time) []models.DomainEvent {
	pos := *t.Position
	fields := models.EventFields{
		Geofence:    fence.Name,
		FromArea:    t.Origin(),
		ToArea:      fence.Name,
		MovedMeters: moved,
		Position:    &pos,
	}

	if moved > m.cfg.IdleDriftMeters {
		if !fs.Idle.Active() {
			return nil
		}
		fields.IdleSince = fs.Idle.Since
		fields.DwellSeconds = fs.Idle.Dwell(now).Seconds()
		fs.Idle = models.NotIdle()
		return []models.DomainEvent{m.newEvent(t, models.EventIdleResume, now,
			fmt.Sprintf("Tracker %s resumed moving in %s (%.0f m)", t.ID, fence.Name, moved), fields)}
	}

	switch fs.Idle.Phase {
	case models.IdlePhaseNotIdle:
		fs.Idle = models.IdleSince(now)
		fields.IdleSince = now
		return []models.DomainEvent{m.newEvent(t, models.EventIdleStart, now,
			fmt.Sprintf("Tracker %s is idle in %s", t.ID, fence.Name), fields)}

	case models.IdlePhaseIdle:
		dwell := fs.Idle.Dwell(now)
		if dwell < m.cfg.IdleThreshold {
			return nil
		}
		fs.Idle.Phase = models.IdlePhaseViolated
		fields.IdleSince = fs.Idle.Since
		fields.DwellSeconds = dwell.Seconds()
		return []models.DomainEvent{m.newEvent(t, models.EventViolation, now,
			fmt.Sprintf("Tracker %s idle in %s for %.1f minutes", t.ID, fence.Name, dwell.Minutes()), fields)}
	}

	// Violated: the episode already fired
	return nil
}

func (m *TrackerMachine) newEvent(t *models.Tracker, eventType models.EventType, now time.Time, message string, fields models.EventFields) models.DomainEvent {
	return models.DomainEvent{
		ID:        m.newID(),
		TrackerID: t.ID,
		Type:      eventType,
		Timestamp: now,
		Message:   message,
		Fields:    fields,
	}
}
