package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"vesselwatch/services"
	"vesselwatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	deleted int64
	err     error
}

func (p *fakePurger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.deleted, p.err
}

func TestCleanupWorker_PurgesOnSchedule(t *testing.T) {
	clock := utils.NewManualClock(testStart)
	purger := &fakePurger{deleted: 7}
	worker := NewCleanupWorker(purger, clock, CleanupWorkerConfig{
		EventRetention:       30 * 24 * time.Hour,
		EventCleanupInterval: time.Hour,
	})

	worker.RunDue()
	assert.Empty(t, purger.cutoffs, "nothing is due before the first interval")

	clock.Advance(time.Hour)
	worker.RunDue()
	require.Len(t, purger.cutoffs, 1)
	assert.Equal(t, clock.Now().Add(-30*24*time.Hour), purger.cutoffs[0])

	worker.RunDue()
	assert.Len(t, purger.cutoffs, 1, "task waits for its next interval")

	stats := worker.GetStats()
	assert.Equal(t, int64(7), stats.EventsPurged)
	assert.Equal(t, int64(1), stats.TasksExecuted)
}

func TestCleanupWorker_CountsFailures(t *testing.T) {
	clock := utils.NewManualClock(testStart)
	purger := &fakePurger{err: errors.New("mongo down")}
	worker := NewCleanupWorker(purger, clock, CleanupWorkerConfig{
		EventRetention:       time.Hour,
		EventCleanupInterval: time.Minute,
	})

	clock.Advance(time.Minute)
	worker.RunDue()

	stats := worker.GetStats()
	assert.Equal(t, int64(1), stats.TasksFailed)
	assert.Zero(t, stats.EventsPurged)
}

func TestCleanupWorker_PrunesDedup(t *testing.T) {
	clock := utils.NewManualClock(testStart)
	dedup, err := services.NewMemoryDedupWindow(30*time.Second, 2*time.Minute, 16)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = dedup.ShouldPresent(ctx, "MFBR-0001|san fernando|san juan", clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, dedup.Len())

	worker := NewCleanupWorker(nil, clock, CleanupWorkerConfig{DedupPruneInterval: time.Minute}, dedup)
	for _, task := range worker.GetTasks() {
		if task.Name == "event_retention" {
			assert.False(t, task.Enabled, "retention needs an event purger")
		}
	}

	clock.Advance(3 * time.Minute)
	worker.RunDue()

	assert.Equal(t, 0, dedup.Len())
	assert.Equal(t, int64(1), worker.GetStats().DedupKeysPruned)
}

func TestCleanupWorker_ToggleTasks(t *testing.T) {
	worker := NewCleanupWorker(&fakePurger{}, utils.NewManualClock(testStart), CleanupWorkerConfig{EventRetention: time.Hour})

	require.NoError(t, worker.DisableTask("event_retention"))
	for _, task := range worker.GetTasks() {
		if task.Name == "event_retention" {
			assert.False(t, task.Enabled)
		}
	}

	err := worker.EnableTask("vacuum")
	require.Error(t, err)
	serviceErr, ok := utils.GetServiceError(err)
	require.True(t, ok)
	assert.Equal(t, 404, serviceErr.StatusCode)
}

func TestCleanupWorker_StartStop(t *testing.T) {
	worker := NewCleanupWorker(nil, nil, CleanupWorkerConfig{TickInterval: 10 * time.Millisecond})
	require.NoError(t, worker.Start())
	require.NoError(t, worker.Start())
	require.NoError(t, worker.Stop())
	require.NoError(t, worker.Stop())
}
