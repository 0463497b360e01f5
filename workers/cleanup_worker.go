package workers

import (
	"context"
	"sync"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
)

// EventPurger removes domain events older than a cutoff
type EventPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type CleanupWorker struct {
	// Dependencies
	events EventPurger
	dedup  []interfaces.DedupStore
	clock  utils.Clock

	// Worker configuration
	config CleanupWorkerConfig

	// Worker state
	isRunning bool
	mutex     sync.RWMutex

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tasks      []CleanupTask
	tasksMutex sync.Mutex

	// Metrics
	stats      CleanupWorkerStats
	statsMutex sync.RWMutex
}

type CleanupWorkerConfig struct {
	// Events older than this are deleted. Zero keeps the log forever.
	EventRetention time.Duration `json:"eventRetention"`

	EventCleanupInterval time.Duration `json:"eventCleanupInterval"`
	DedupPruneInterval   time.Duration `json:"dedupPruneInterval"`

	// How often the scheduler looks for due tasks
	TickInterval time.Duration `json:"tickInterval"`
}

type CleanupTask struct {
	Name        string                          `json:"name"`
	Description string                          `json:"description"`
	Interval    time.Duration                   `json:"interval"`
	LastRun     time.Time                       `json:"lastRun"`
	NextRun     time.Time                       `json:"nextRun"`
	Enabled     bool                            `json:"enabled"`
	Function    func(ctx context.Context) error `json:"-"`
}

type CleanupWorkerStats struct {
	TasksExecuted      int64            `json:"tasksExecuted"`
	TasksFailed        int64            `json:"tasksFailed"`
	EventsPurged       int64            `json:"eventsPurged"`
	DedupKeysPruned    int64            `json:"dedupKeysPruned"`
	LastCleanupAt      time.Time        `json:"lastCleanupAt"`
	TaskExecutionTimes map[string]int64 `json:"taskExecutionTimes"` // ms
	StartTime          time.Time        `json:"startTime"`
}

func DefaultCleanupWorkerConfig() CleanupWorkerConfig {
	return CleanupWorkerConfig{
		EventRetention:       180 * 24 * time.Hour,
		EventCleanupInterval: 24 * time.Hour,
		DedupPruneInterval:   time.Minute,
		TickInterval:         30 * time.Second,
	}
}

// NewCleanupWorker schedules log retention and dedup pruning. events may be
// nil, in which case only the dedup windows are pruned.
func NewCleanupWorker(events EventPurger, clock utils.Clock, config CleanupWorkerConfig, dedup ...interfaces.DedupStore) *CleanupWorker {
	ctx, cancel := context.WithCancel(context.Background())

	defaults := DefaultCleanupWorkerConfig()
	if config.EventCleanupInterval <= 0 {
		config.EventCleanupInterval = defaults.EventCleanupInterval
	}
	if config.DedupPruneInterval <= 0 {
		config.DedupPruneInterval = defaults.DedupPruneInterval
	}
	if config.TickInterval <= 0 {
		config.TickInterval = defaults.TickInterval
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}

	worker := &CleanupWorker{
		events: events,
		dedup:  dedup,
		clock:  clock,
		config: config,
		ctx:    ctx,
		cancel: cancel,
		stats: CleanupWorkerStats{
			StartTime:          clock.Now(),
			TaskExecutionTimes: make(map[string]int64),
		},
	}

	worker.initializeTasks()
	return worker
}

func (cw *CleanupWorker) Start() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.isRunning {
		return nil
	}
	cw.isRunning = true

	cw.wg.Add(1)
	go cw.taskScheduler()

	logrus.Infof("Cleanup Worker started with %d tasks", len(cw.tasks))
	return nil
}

func (cw *CleanupWorker) Stop() error {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.isRunning {
		return nil
	}

	cw.cancel()
	cw.isRunning = false
	cw.wg.Wait()

	logrus.Info("Cleanup Worker stopped")
	return nil
}

func (cw *CleanupWorker) initializeTasks() {
	cw.tasks = []CleanupTask{
		{
			Name:        "event_retention",
			Description: "Delete tracker events past the retention period",
			Interval:    cw.config.EventCleanupInterval,
			Enabled:     cw.events != nil && cw.config.EventRetention > 0,
			Function:    cw.purgeEvents,
		},
		{
			Name:        "dedup_prune",
			Description: "Drop expired alert dedup entries",
			Interval:    cw.config.DedupPruneInterval,
			Enabled:     len(cw.dedup) > 0,
			Function:    cw.pruneDedup,
		},
	}

	now := cw.clock.Now()
	for i := range cw.tasks {
		cw.tasks[i].NextRun = now.Add(cw.tasks[i].Interval)
	}
}

func (cw *CleanupWorker) taskScheduler() {
	defer cw.wg.Done()

	ticker := time.NewTicker(cw.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cw.RunDue()

		case <-cw.ctx.Done():
			return
		}
	}
}

// RunDue executes every enabled task whose next run has passed
func (cw *CleanupWorker) RunDue() {
	cw.tasksMutex.Lock()
	defer cw.tasksMutex.Unlock()

	now := cw.clock.Now()
	for i := range cw.tasks {
		task := &cw.tasks[i]
		if !task.Enabled || now.Before(task.NextRun) {
			continue
		}

		startTime := time.Now()
		err := task.Function(cw.ctx)
		executionTime := time.Since(startTime)

		cw.statsMutex.Lock()
		cw.stats.TaskExecutionTimes[task.Name] = executionTime.Milliseconds()
		if err != nil {
			cw.stats.TasksFailed++
			logrus.Errorf("Cleanup task %s failed: %v", task.Name, err)
		} else {
			cw.stats.TasksExecuted++
			cw.stats.LastCleanupAt = now
		}
		cw.statsMutex.Unlock()

		task.LastRun = now
		task.NextRun = now.Add(task.Interval)
	}
}

func (cw *CleanupWorker) purgeEvents(ctx context.Context) error {
	cutoff := cw.clock.Now().Add(-cw.config.EventRetention)

	deleted, err := cw.events.PurgeBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	cw.statsMutex.Lock()
	cw.stats.EventsPurged += deleted
	cw.statsMutex.Unlock()

	if deleted > 0 {
		logrus.Infof("Purged %d tracker events older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}

func (cw *CleanupWorker) pruneDedup(ctx context.Context) error {
	now := cw.clock.Now()
	pruned := 0
	for _, d := range cw.dedup {
		pruned += d.Prune(now)
	}

	cw.statsMutex.Lock()
	cw.stats.DedupKeysPruned += int64(pruned)
	cw.statsMutex.Unlock()
	return nil
}

func (cw *CleanupWorker) GetStats() CleanupWorkerStats {
	cw.statsMutex.RLock()
	defer cw.statsMutex.RUnlock()

	stats := cw.stats
	stats.TaskExecutionTimes = make(map[string]int64, len(cw.stats.TaskExecutionTimes))
	for k, v := range cw.stats.TaskExecutionTimes {
		stats.TaskExecutionTimes[k] = v
	}
	return stats
}

func (cw *CleanupWorker) GetTasks() []CleanupTask {
	cw.tasksMutex.Lock()
	defer cw.tasksMutex.Unlock()

	tasks := make([]CleanupTask, len(cw.tasks))
	copy(tasks, cw.tasks)
	return tasks
}

func (cw *CleanupWorker) EnableTask(taskName string) error {
	return cw.setTaskEnabled(taskName, true)
}

func (cw *CleanupWorker) DisableTask(taskName string) error {
	return cw.setTaskEnabled(taskName, false)
}

func (cw *CleanupWorker) setTaskEnabled(taskName string, enabled bool) error {
	cw.tasksMutex.Lock()
	defer cw.tasksMutex.Unlock()

	for i := range cw.tasks {
		if cw.tasks[i].Name == taskName {
			cw.tasks[i].Enabled = enabled
			logrus.Infof("Cleanup task %s enabled=%t", taskName, enabled)
			return nil
		}
	}
	return utils.NewNotFoundError("Cleanup task " + taskName)
}
