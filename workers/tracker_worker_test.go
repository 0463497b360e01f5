package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"vesselwatch/models"
	"vesselwatch/services"
	"vesselwatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fenceCenter = models.GeoPoint{Latitude: 16.6730, Longitude: 120.3447}
	outside     = models.GeoPoint{Latitude: 16.6159, Longitude: 120.3176}
	testStart   = time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
)

// memoryRecorder assigns sequences like the event log and can hold the
// first call until released
type memoryRecorder struct {
	mu      sync.Mutex
	events  []models.DomainEvent
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *memoryRecorder) Record(ctx context.Context, events []models.DomainEvent) ([]models.DomainEvent, error) {
	if r.release != nil {
		r.once.Do(func() {
			close(r.entered)
			<-r.release
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]models.DomainEvent, len(events))
	for i, e := range events {
		e.Sequence = int64(len(r.events) + 1)
		r.events = append(r.events, e)
		stored[i] = e
	}
	return stored, nil
}

func (r *memoryRecorder) types(trackerID string) []models.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.EventType
	for _, e := range r.events {
		if e.TrackerID == trackerID {
			out = append(out, e.Type)
		}
	}
	return out
}

// flakyRecorder refuses the first failures calls
type flakyRecorder struct {
	memoryRecorder
	failures int
	calls    int
}

func (r *flakyRecorder) Record(ctx context.Context, events []models.DomainEvent) ([]models.DomainEvent, error) {
	r.mu.Lock()
	r.calls++
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return nil, errors.New("event store unavailable")
	}
	r.mu.Unlock()
	return r.memoryRecorder.Record(ctx, events)
}

func newFlakyPool(t *testing.T, recorder *flakyRecorder) *TrackerWorkerPool {
	t.Helper()
	clock := utils.NewManualClock(testStart)
	pool := NewTrackerWorkerPool(testMachine(clock), recorder, nil, clock, TrackerWorkerConfig{
		RecordAttempts:   1,
		RecordRetryDelay: time.Millisecond,
	})
	require.NoError(t, pool.Start())
	return pool
}

func testMachine(clock utils.Clock) *services.TrackerMachine {
	cfg := services.DetectionConfig{
		IdleDriftMeters:         25,
		IdleThreshold:           time.Minute,
		HeartbeatInterval:       time.Minute,
		OfflineAfterMissed:      8,
		ReconnectingAfterMissed: 10,
	}
	fence := models.Geofence{Name: "San Juan", Center: fenceCenter, RadiusMeters: 3000, Watched: true}
	return services.NewTrackerMachine(cfg, []models.Geofence{fence}, clock)
}

func newTestPool(t *testing.T, recorder *memoryRecorder, queueSize int) *TrackerWorkerPool {
	t.Helper()
	clock := utils.NewManualClock(testStart)
	pool := NewTrackerWorkerPool(testMachine(clock), recorder, nil, clock, TrackerWorkerConfig{LaneQueueSize: queueSize})
	require.NoError(t, pool.Start())
	return pool
}

func sampleAt(trackerID string, p models.GeoPoint, at time.Time) models.PositionSample {
	return models.PositionSample{TrackerID: trackerID, Latitude: p.Latitude, Longitude: p.Longitude, Timestamp: at}
}

func TestTrackerWorkerPool_RejectsWhenStopped(t *testing.T) {
	recorder := &memoryRecorder{}
	clock := utils.NewManualClock(testStart)
	pool := NewTrackerWorkerPool(testMachine(clock), recorder, nil, clock, TrackerWorkerConfig{})

	err := pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart))
	assert.ErrorIs(t, err, utils.ErrWorkerStopped)

	require.NoError(t, pool.Start())
	require.NoError(t, pool.Stop())
	err = pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart))
	assert.ErrorIs(t, err, utils.ErrWorkerStopped)
}

func TestTrackerWorkerPool_RejectsMalformed(t *testing.T) {
	pool := newTestPool(t, &memoryRecorder{}, 0)
	defer pool.Stop()

	err := pool.Submit(models.PositionSample{TrackerID: "MFBR-0001", Latitude: 91, Longitude: 120})
	assert.ErrorIs(t, err, utils.ErrMalformedSample)

	err = pool.Submit(models.PositionSample{Latitude: 16, Longitude: 120})
	assert.ErrorIs(t, err, utils.ErrMalformedSample)

	assert.Equal(t, int64(2), pool.GetStats().SamplesRejected)
	assert.Empty(t, pool.Summaries())
}

func TestTrackerWorkerPool_PerTrackerOrder(t *testing.T) {
	recorder := &memoryRecorder{}
	pool := newTestPool(t, recorder, 0)

	trackers := []string{"MFBR-0001", "MFBR-0002", "MFBR-0003"}
	at := testStart
	for i := 0; i < 4; i++ {
		for _, id := range trackers {
			p := fenceCenter
			if i%2 == 1 {
				p = outside
			}
			require.NoError(t, pool.Submit(sampleAt(id, p, at)))
		}
		at = at.Add(5 * time.Second)
	}
	require.NoError(t, pool.Stop())

	want := []models.EventType{
		models.EventGeofenceEnter, models.EventGeofenceExit,
		models.EventGeofenceEnter, models.EventGeofenceExit,
	}
	for _, id := range trackers {
		assert.Equal(t, want, recorder.types(id), id)
	}

	summaries := pool.Summaries()
	require.Len(t, summaries, 3)
	assert.Equal(t, "MFBR-0001", summaries[0].ID)
	assert.Equal(t, int64(4), summaries[0].SampleCount)
	assert.Empty(t, summaries[0].InsideFences)

	stats := pool.GetStats()
	assert.Equal(t, int64(12), stats.SamplesProcessed)
	assert.Equal(t, int64(12), stats.EventsEmitted)
	assert.Equal(t, 3, stats.ActiveLanes)
}

func TestTrackerWorkerPool_QueueFull(t *testing.T) {
	recorder := &memoryRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	pool := newTestPool(t, recorder, 1)

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart)))
	select {
	case <-recorder.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("lane did not start processing")
	}

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart.Add(5*time.Second))))
	err := pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart.Add(10*time.Second)))
	assert.ErrorIs(t, err, utils.ErrTrackerQueueFull)

	// other vessels are not affected
	require.NoError(t, pool.Submit(sampleAt("MFBR-0002", fenceCenter, testStart)))

	close(recorder.release)
	require.NoError(t, pool.Stop())
	assert.Equal(t, int64(1), pool.GetStats().QueueFull)
}

func TestTrackerWorkerPool_HeartbeatGoesOffline(t *testing.T) {
	recorder := &memoryRecorder{}
	pool := newTestPool(t, recorder, 0)

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", outside, testStart)))
	require.Eventually(t, func() bool {
		return pool.GetStats().SamplesProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)

	enqueued, skipped := pool.CheckHeartbeats(testStart.Add(7 * time.Minute))
	assert.Equal(t, 1, enqueued)
	assert.Zero(t, skipped)

	pool.CheckHeartbeats(testStart.Add(8 * time.Minute))
	pool.CheckHeartbeats(testStart.Add(10 * time.Minute))
	require.NoError(t, pool.Stop())

	assert.Equal(t, []models.EventType{
		models.EventConnectivityOffline,
		models.EventConnectivityReconnecting,
	}, recorder.types("MFBR-0001"))

	summary, err := pool.Summary("MFBR-0001")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectivityReconnecting, summary.Connectivity)

	_, err = pool.Summary("MFBR-9999")
	assert.ErrorIs(t, err, utils.ErrTrackerNotFound)
}

func TestTrackerWorkerPool_SetConnectivity(t *testing.T) {
	recorder := &memoryRecorder{}
	pool := newTestPool(t, recorder, 0)

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", outside, testStart)))
	require.NoError(t, pool.SetConnectivity("MFBR-0001", models.ConnectivityOffline))
	assert.Error(t, pool.SetConnectivity("MFBR-0001", "sleeping"))
	assert.Error(t, pool.SetConnectivity("", models.ConnectivityOffline))

	// a signal for an unseen tracker registers it
	require.NoError(t, pool.SetConnectivity("MFBR-0002", models.ConnectivityOffline))
	require.NoError(t, pool.Stop())

	assert.Equal(t, []models.EventType{models.EventConnectivityOffline}, recorder.types("MFBR-0001"))
	assert.Equal(t, []models.EventType{models.EventConnectivityOffline}, recorder.types("MFBR-0002"))

	summary, err := pool.Summary("MFBR-0002")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectivityOffline, summary.Connectivity)
}

func TestTrackerWorkerPool_UnrecordedEventsRetriedWithNextJob(t *testing.T) {
	recorder := &flakyRecorder{failures: 1}
	pool := newFlakyPool(t, recorder)

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart)))
	require.Eventually(t, func() bool {
		return pool.GetStats().SamplesProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.RecordFailures)
	assert.Equal(t, int64(1), stats.BackloggedEvents)
	assert.Empty(t, recorder.types("MFBR-0001"))

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart.Add(5*time.Second))))
	require.NoError(t, pool.Stop())

	assert.Equal(t, []models.EventType{models.EventGeofenceEnter, models.EventIdleStart}, recorder.types("MFBR-0001"))
	stats = pool.GetStats()
	assert.Zero(t, stats.BackloggedEvents)
	assert.Zero(t, stats.DroppedEvents)
}

func TestTrackerWorkerPool_BacklogFlushedOnStop(t *testing.T) {
	recorder := &flakyRecorder{failures: 1}
	pool := newFlakyPool(t, recorder)

	require.NoError(t, pool.Submit(sampleAt("MFBR-0001", fenceCenter, testStart)))
	require.NoError(t, pool.Stop())

	assert.Equal(t, 2, recorder.calls)
	assert.Equal(t, []models.EventType{models.EventGeofenceEnter}, recorder.types("MFBR-0001"))
	assert.Zero(t, pool.GetStats().BackloggedEvents)
}

type fakeChecker struct {
	calls []time.Time
}

func (f *fakeChecker) CheckHeartbeats(now time.Time) (int, int) {
	f.calls = append(f.calls, now)
	return 2, 1
}

func TestHeartbeatWorker_Tick(t *testing.T) {
	checker := &fakeChecker{}
	clock := utils.NewManualClock(testStart)
	hw := NewHeartbeatWorker(checker, clock, time.Minute)

	hw.Tick()
	clock.Advance(time.Minute)
	hw.Tick()

	assert.Equal(t, []time.Time{testStart, testStart.Add(time.Minute)}, checker.calls)
	stats := hw.GetStats()
	assert.Equal(t, int64(2), stats.Ticks)
	assert.Equal(t, int64(4), stats.Enqueued)
	assert.Equal(t, int64(2), stats.Skipped)
}
