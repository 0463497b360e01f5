package workers

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"
	"vesselwatch/services"
	"vesselwatch/utils"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// TrackerWorkerPool runs one lane goroutine per tracker. A lane owns its
// tracker state exclusively, so samples and heartbeat checks for the same
// vessel are applied strictly in submission order while different vessels
// proceed in parallel.
type TrackerWorkerPool struct {
	machine     *services.TrackerMachine
	recorder    interfaces.EventRecorder
	broadcaster interfaces.WebSocketBroadcaster
	clock       utils.Clock

	config TrackerWorkerConfig

	lanes      map[string]*trackerLane
	homeAreas  map[string]string
	lanesMutex sync.RWMutex

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	stats      TrackerWorkerStats
	statsMutex sync.RWMutex
}

type TrackerWorkerConfig struct {
	LaneQueueSize     int           `json:"laneQueueSize"`
	ProcessingTimeout time.Duration `json:"processingTimeout"`
	RecordAttempts    uint          `json:"recordAttempts"`
	RecordRetryDelay  time.Duration `json:"recordRetryDelay"`
	MaxBacklog        int           `json:"maxBacklog"`
}

func DefaultTrackerWorkerConfig() TrackerWorkerConfig {
	return TrackerWorkerConfig{
		LaneQueueSize:     256,
		ProcessingTimeout: 10 * time.Second,
		RecordAttempts:    3,
		RecordRetryDelay:  100 * time.Millisecond,
		MaxBacklog:        1024,
	}
}

type TrackerWorkerStats struct {
	SamplesAccepted    int64     `json:"samplesAccepted"`
	SamplesProcessed   int64     `json:"samplesProcessed"`
	SamplesRejected    int64     `json:"samplesRejected"`
	QueueFull          int64     `json:"queueFull"`
	HeartbeatChecks    int64     `json:"heartbeatChecks"`
	EventsEmitted      int64     `json:"eventsEmitted"`
	RecordFailures     int64     `json:"recordFailures"`
	BackloggedEvents   int64     `json:"backloggedEvents"`
	DroppedEvents      int64     `json:"droppedEvents"`
	ActiveLanes        int       `json:"activeLanes"`
	AverageProcessTime float64   `json:"averageProcessTime"` // ms
	LastProcessedAt    time.Time `json:"lastProcessedAt"`
	StartTime          time.Time `json:"startTime"`
}

type jobKind int

const (
	jobSample jobKind = iota
	jobHeartbeat
	jobConnectivity
)

type laneJob struct {
	kind   jobKind
	sample models.PositionSample
	status models.ConnectivityStatus
	at     time.Time
}

type trackerLane struct {
	id      string
	jobs    chan laneJob
	tracker *models.Tracker
	summary atomic.Pointer[models.TrackerSummary]

	// events the recorder has not accepted yet, oldest first
	backlog []models.DomainEvent
}

func NewTrackerWorkerPool(
	machine *services.TrackerMachine,
	recorder interfaces.EventRecorder,
	broadcaster interfaces.WebSocketBroadcaster,
	clock utils.Clock,
	config TrackerWorkerConfig,
) *TrackerWorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	defaults := DefaultTrackerWorkerConfig()
	if config.LaneQueueSize <= 0 {
		config.LaneQueueSize = defaults.LaneQueueSize
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = defaults.ProcessingTimeout
	}
	if config.RecordAttempts == 0 {
		config.RecordAttempts = defaults.RecordAttempts
	}
	if config.RecordRetryDelay <= 0 {
		config.RecordRetryDelay = defaults.RecordRetryDelay
	}
	if config.MaxBacklog <= 0 {
		config.MaxBacklog = defaults.MaxBacklog
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}

	return &TrackerWorkerPool{
		machine:     machine,
		recorder:    recorder,
		broadcaster: broadcaster,
		clock:       clock,
		config:      config,
		lanes:       make(map[string]*trackerLane),
		homeAreas:   make(map[string]string),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetHomeArea attributes a tracker's violations to its registered home
// municipality. It only affects lanes created afterwards.
func (tp *TrackerWorkerPool) SetHomeArea(trackerID, area string) {
	tp.lanesMutex.Lock()
	defer tp.lanesMutex.Unlock()
	tp.homeAreas[trackerID] = area
}

func (tp *TrackerWorkerPool) Start() error {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	if tp.isRunning {
		return nil
	}

	tp.isRunning = true

	tp.statsMutex.Lock()
	tp.stats.StartTime = time.Now()
	tp.statsMutex.Unlock()

	logrus.Infof("Tracker worker pool started (lane queue %d)", tp.config.LaneQueueSize)
	return nil
}

// Stop closes every lane, waits for queued work to drain and then cancels
// in-flight processing.
func (tp *TrackerWorkerPool) Stop() error {
	tp.mutex.Lock()
	if !tp.isRunning {
		tp.mutex.Unlock()
		return nil
	}

	logrus.Info("Stopping tracker worker pool...")
	tp.isRunning = false

	tp.lanesMutex.RLock()
	for _, lane := range tp.lanes {
		close(lane.jobs)
	}
	tp.lanesMutex.RUnlock()
	tp.mutex.Unlock()

	tp.wg.Wait()
	tp.cancel()

	logrus.Info("Tracker worker pool stopped successfully")
	return nil
}

// Submit queues a sample on its tracker's lane. Malformed samples are
// rejected here so callers get the error synchronously.
func (tp *TrackerWorkerPool) Submit(sample models.PositionSample) error {
	if sample.TrackerID == "" || !utils.IsValidCoordinate(sample.Latitude, sample.Longitude) {
		tp.statsMutex.Lock()
		tp.stats.SamplesRejected++
		tp.statsMutex.Unlock()
		return utils.ErrMalformedSample
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = tp.clock.Now()
	}

	err := tp.enqueue(sample.TrackerID, laneJob{kind: jobSample, sample: sample, at: sample.Timestamp}, true)
	if err == nil {
		tp.statsMutex.Lock()
		tp.stats.SamplesAccepted++
		tp.statsMutex.Unlock()
	}
	return err
}

// SetConnectivity forces a connectivity status. Like samples, a signal for
// an unseen tracker starts its lane.
func (tp *TrackerWorkerPool) SetConnectivity(trackerID string, status models.ConnectivityStatus) error {
	if trackerID == "" {
		return utils.NewBadRequestError("tracker id is required")
	}
	if !status.Valid() {
		return utils.NewBadRequestError("invalid connectivity status")
	}
	return tp.enqueue(trackerID, laneJob{kind: jobConnectivity, status: status, at: tp.clock.Now()}, true)
}

// CheckHeartbeats asks every lane to evaluate missed heartbeats at now.
// A lane with a full queue is skipped; it is busy with fresh samples.
func (tp *TrackerWorkerPool) CheckHeartbeats(now time.Time) (enqueued, skipped int) {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()

	if !tp.isRunning {
		return 0, 0
	}

	tp.lanesMutex.RLock()
	defer tp.lanesMutex.RUnlock()

	for _, lane := range tp.lanes {
		select {
		case lane.jobs <- laneJob{kind: jobHeartbeat, at: now}:
			enqueued++
		default:
			skipped++
		}
	}
	return enqueued, skipped
}

func (tp *TrackerWorkerPool) enqueue(trackerID string, job laneJob, create bool) error {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()

	if !tp.isRunning {
		return utils.ErrWorkerStopped
	}

	lane := tp.lane(trackerID, create)
	if lane == nil {
		return utils.ErrTrackerNotFound
	}

	select {
	case lane.jobs <- job:
		return nil
	default:
		tp.statsMutex.Lock()
		tp.stats.QueueFull++
		tp.statsMutex.Unlock()
		logrus.Warnf("Lane queue full for tracker %s", trackerID)
		return utils.ErrTrackerQueueFull
	}
}

// lane returns the tracker's lane, starting it on first use. Callers hold tp.mutex.
func (tp *TrackerWorkerPool) lane(trackerID string, create bool) *trackerLane {
	tp.lanesMutex.RLock()
	lane, ok := tp.lanes[trackerID]
	tp.lanesMutex.RUnlock()
	if ok || !create {
		return lane
	}

	tp.lanesMutex.Lock()
	defer tp.lanesMutex.Unlock()

	if lane, ok := tp.lanes[trackerID]; ok {
		return lane
	}

	tracker := models.NewTracker(trackerID, tp.clock.Now())
	tracker.HomeArea = tp.homeAreas[trackerID]

	lane = &trackerLane{
		id:      trackerID,
		jobs:    make(chan laneJob, tp.config.LaneQueueSize),
		tracker: tracker,
	}
	summary := tracker.Summary()
	lane.summary.Store(&summary)
	tp.lanes[trackerID] = lane

	tp.wg.Add(1)
	go tp.worker(lane)

	logrus.Infof("Tracker lane started: %s", trackerID)
	return lane
}

func (tp *TrackerWorkerPool) worker(lane *trackerLane) {
	defer tp.wg.Done()

	for job := range lane.jobs {
		tp.process(lane, job)
	}

	if len(lane.backlog) > 0 {
		tp.record(lane, nil)
	}

	logrus.Debugf("Tracker lane %s stopped", lane.id)
}

func (tp *TrackerWorkerPool) process(lane *trackerLane, job laneJob) {
	startTime := time.Now()

	var events []models.DomainEvent
	switch job.kind {
	case jobSample:
		var err error
		events, err = tp.machine.ApplySample(lane.tracker, job.sample)
		if err != nil {
			tp.statsMutex.Lock()
			tp.stats.SamplesRejected++
			tp.statsMutex.Unlock()
			return
		}
	case jobHeartbeat:
		events = tp.machine.CheckHeartbeat(lane.tracker, job.at)
		tp.statsMutex.Lock()
		tp.stats.HeartbeatChecks++
		tp.statsMutex.Unlock()
		if len(events) == 0 && len(lane.backlog) == 0 {
			return
		}
	case jobConnectivity:
		events = tp.machine.ApplyConnectivity(lane.tracker, job.status, job.at)
	}

	tp.record(lane, events)

	summary := lane.tracker.Summary()
	lane.summary.Store(&summary)
	if tp.broadcaster != nil {
		tp.broadcaster.BroadcastGPSUpdate(summary)
	}

	tp.updateStats(job.kind, len(events), time.Since(startTime))
}

// record hands the lane's backlog plus the new events to the recorder,
// retrying transient failures. The tracker has already moved past these
// transitions, so events the recorder keeps refusing stay on the lane and
// go out ahead of the next job's events.
func (tp *TrackerWorkerPool) record(lane *trackerLane, events []models.DomainEvent) {
	if tp.recorder == nil {
		return
	}

	pending := make([]models.DomainEvent, 0, len(lane.backlog)+len(events))
	pending = append(pending, lane.backlog...)
	pending = append(pending, events...)
	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(tp.ctx, tp.config.ProcessingTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = tp.config.RecordRetryDelay

	_, err := backoff.Retry(ctx, func() ([]models.DomainEvent, error) {
		return tp.recorder.Record(ctx, pending)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tp.config.RecordAttempts))

	previous := len(lane.backlog)
	if err == nil {
		lane.backlog = nil
		tp.statsMutex.Lock()
		tp.stats.BackloggedEvents -= int64(previous)
		tp.statsMutex.Unlock()
		if previous > 0 {
			logrus.Infof("Recorded %d backlogged events for tracker %s", previous, lane.id)
		}
		return
	}

	dropped := 0
	if over := len(pending) - tp.config.MaxBacklog; over > 0 {
		dropped = over
		pending = pending[over:]
	}
	lane.backlog = pending

	tp.statsMutex.Lock()
	tp.stats.RecordFailures++
	tp.stats.BackloggedEvents += int64(len(pending) - previous)
	tp.stats.DroppedEvents += int64(dropped)
	tp.statsMutex.Unlock()

	entry := logrus.WithFields(logrus.Fields{
		"tracker_id": lane.id,
		"backlog":    len(pending),
	})
	if dropped > 0 {
		entry.Errorf("Event backlog full, dropped %d oldest events: %v", dropped, err)
		return
	}
	entry.Errorf("Failed to record events, keeping them for the next attempt: %v", err)
}

func (tp *TrackerWorkerPool) updateStats(kind jobKind, events int, duration time.Duration) {
	tp.statsMutex.Lock()
	defer tp.statsMutex.Unlock()

	if kind == jobSample {
		tp.stats.SamplesProcessed++
	}
	tp.stats.EventsEmitted += int64(events)
	tp.stats.LastProcessedAt = time.Now()

	// Exponential moving average of processing time
	ms := float64(duration.Nanoseconds()) / 1e6
	if tp.stats.AverageProcessTime == 0 {
		tp.stats.AverageProcessTime = ms
	} else {
		tp.stats.AverageProcessTime = 0.9*tp.stats.AverageProcessTime + 0.1*ms
	}
}

// Summaries returns the latest snapshot of every tracker, sorted by ID
func (tp *TrackerWorkerPool) Summaries() []models.TrackerSummary {
	tp.lanesMutex.RLock()
	defer tp.lanesMutex.RUnlock()

	out := make([]models.TrackerSummary, 0, len(tp.lanes))
	for _, lane := range tp.lanes {
		out = append(out, *lane.summary.Load())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (tp *TrackerWorkerPool) Summary(trackerID string) (models.TrackerSummary, error) {
	tp.lanesMutex.RLock()
	lane, ok := tp.lanes[trackerID]
	tp.lanesMutex.RUnlock()

	if !ok {
		return models.TrackerSummary{}, utils.ErrTrackerNotFound
	}
	return *lane.summary.Load(), nil
}

func (tp *TrackerWorkerPool) Geofences() []models.Geofence {
	return tp.machine.Geofences()
}

func (tp *TrackerWorkerPool) IsRunning() bool {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()
	return tp.isRunning
}

func (tp *TrackerWorkerPool) GetStats() TrackerWorkerStats {
	tp.statsMutex.RLock()
	stats := tp.stats
	tp.statsMutex.RUnlock()

	tp.lanesMutex.RLock()
	stats.ActiveLanes = len(tp.lanes)
	tp.lanesMutex.RUnlock()

	return stats
}
