package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
	"vesselwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(trackerID string, eventType models.EventType, at time.Time) models.DomainEvent {
	return models.DomainEvent{
		ID:        fmt.Sprintf("%s-%s-%d", trackerID, eventType, at.UnixNano()),
		TrackerID: trackerID,
		Type:      eventType,
		Timestamp: at,
	}
}

func TestMemoryEventLog_AppendAssignsSequence(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryEventLog()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	stored, err := log.Append(ctx,
		event("a", models.EventGeofenceEnter, now),
		event("a", models.EventIdleStart, now.Add(time.Second)),
	)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1), stored[0].Sequence)
	assert.Equal(t, int64(2), stored[1].Sequence)

	stored, err = log.Append(ctx, event("b", models.EventGeofenceEnter, now))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored[0].Sequence)

	last, err := log.LastSequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	empty, err := log.Append(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryEventLog_HistoryIsPerTrackerAndOrdered(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryEventLog()
	now := time.Now()

	for i := 0; i < 5; i++ {
		_, err := log.Append(ctx,
			event("a", models.EventIdleStart, now.Add(time.Duration(i)*time.Second)),
			event("b", models.EventIdleResume, now.Add(time.Duration(i)*time.Second)),
		)
		require.NoError(t, err)
	}

	history, err := log.History(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, "a", history[i].TrackerID)
		assert.Greater(t, history[i].Sequence, history[i-1].Sequence)
	}

	tail, err := log.History(ctx, "a", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, history[3], tail[0])
	assert.Equal(t, history[4], tail[1])

	none, err := log.History(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryEventLog_SinceForCatchUp(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryEventLog()
	now := time.Now()

	for i := 0; i < 10; i++ {
		_, err := log.Append(ctx, event("a", models.EventIdleStart, now.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	events, err := log.Since(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(8), events[0].Sequence)
	assert.Equal(t, int64(10), events[2].Sequence)

	events, err = log.Since(ctx, 0, 4)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, int64(1), events[0].Sequence)

	events, err = log.Since(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryEventLog_ConcurrentAppendsKeepPerTrackerOrder(t *testing.T) {
	ctx := context.Background()
	log := NewMemoryEventLog()
	now := time.Now()

	var wg sync.WaitGroup
	for _, tracker := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := log.Append(ctx, event(id, models.EventIdleStart, now.Add(time.Duration(i)*time.Millisecond)))
				assert.NoError(t, err)
			}
		}(tracker)
	}
	wg.Wait()

	last, _ := log.LastSequence(ctx)
	assert.Equal(t, int64(200), last)

	for _, tracker := range []string{"a", "b", "c", "d"} {
		history, err := log.History(ctx, tracker, 1000)
		require.NoError(t, err)
		require.Len(t, history, 50)
		for i := 1; i < len(history); i++ {
			assert.True(t, history[i].Timestamp.After(history[i-1].Timestamp))
		}
	}
}
