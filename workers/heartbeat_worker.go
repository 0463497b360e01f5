package workers

import (
	"context"
	"sync"
	"time"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
)

// HeartbeatChecker is implemented by the tracker pool
type HeartbeatChecker interface {
	CheckHeartbeats(now time.Time) (enqueued, skipped int)
}

// HeartbeatWorker periodically asks every tracker lane to look for missed
// heartbeats. The check itself runs on the lane, so connectivity changes
// are ordered with the tracker's samples.
type HeartbeatWorker struct {
	checker  HeartbeatChecker
	clock    utils.Clock
	interval time.Duration

	isRunning bool
	mutex     sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      HeartbeatWorkerStats
	statsMutex sync.RWMutex
}

type HeartbeatWorkerStats struct {
	Ticks     int64     `json:"ticks"`
	Enqueued  int64     `json:"enqueued"`
	Skipped   int64     `json:"skipped"`
	LastCheck time.Time `json:"lastCheck"`
}

func NewHeartbeatWorker(checker HeartbeatChecker, clock utils.Clock, interval time.Duration) *HeartbeatWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if clock == nil {
		clock = utils.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &HeartbeatWorker{
		checker:  checker,
		clock:    clock,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (hw *HeartbeatWorker) Start() error {
	hw.mutex.Lock()
	defer hw.mutex.Unlock()

	if hw.isRunning {
		return nil
	}
	hw.isRunning = true

	hw.wg.Add(1)
	go hw.run()

	logrus.Infof("Heartbeat worker started (interval %v)", hw.interval)
	return nil
}

func (hw *HeartbeatWorker) Stop() error {
	hw.mutex.Lock()
	defer hw.mutex.Unlock()

	if !hw.isRunning {
		return nil
	}

	hw.cancel()
	hw.isRunning = false
	hw.wg.Wait()

	logrus.Info("Heartbeat worker stopped")
	return nil
}

func (hw *HeartbeatWorker) run() {
	defer hw.wg.Done()

	ticker := time.NewTicker(hw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hw.Tick()
		case <-hw.ctx.Done():
			return
		}
	}
}

// Tick runs one check pass at the clock's current time
func (hw *HeartbeatWorker) Tick() {
	now := hw.clock.Now()
	enqueued, skipped := hw.checker.CheckHeartbeats(now)

	hw.statsMutex.Lock()
	hw.stats.Ticks++
	hw.stats.Enqueued += int64(enqueued)
	hw.stats.Skipped += int64(skipped)
	hw.stats.LastCheck = now
	hw.statsMutex.Unlock()

	if skipped > 0 {
		logrus.Debugf("Heartbeat check skipped %d busy lanes", skipped)
	}
}

func (hw *HeartbeatWorker) GetStats() HeartbeatWorkerStats {
	hw.statsMutex.RLock()
	defer hw.statsMutex.RUnlock()
	return hw.stats
}
