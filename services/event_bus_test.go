package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"vesselwatch/models"
	"vesselwatch/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, event models.DomainEvent) error

func (f handlerFunc) HandleEvent(ctx context.Context, event models.DomainEvent) error {
	return f(ctx, event)
}

type publisherFunc func(ctx context.Context, events []models.DomainEvent) error

func (f publisherFunc) PublishEvents(ctx context.Context, events []models.DomainEvent) error {
	return f(ctx, events)
}

func TestEventDispatcher_RecordAssignsSequenceAndFansOut(t *testing.T) {
	ctx := context.Background()
	hub := &recordingBroadcaster{}
	d := NewEventDispatcher(repositories.NewMemoryEventLog(), hub)

	var handled []int64
	d.AddHandler(handlerFunc(func(ctx context.Context, event models.DomainEvent) error {
		handled = append(handled, event.Sequence)
		return nil
	}))
	d.AddHandler(handlerFunc(func(ctx context.Context, event models.DomainEvent) error {
		return errors.New("boom")
	}))

	var published [][]models.DomainEvent
	d.AddPublisher(publisherFunc(func(ctx context.Context, events []models.DomainEvent) error {
		published = append(published, events)
		return nil
	}))

	stored, err := d.Record(ctx, []models.DomainEvent{
		violationEvent("evt-1", "MFBR-0001", testStart),
		violationEvent("evt-2", "MFBR-0001", testStart.Add(time.Second)),
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1), stored[0].Sequence)
	assert.Equal(t, int64(2), stored[1].Sequence)

	require.Len(t, hub.events, 2)
	assert.Equal(t, int64(1), hub.events[0].Sequence)
	assert.Equal(t, []int64{1, 2}, handled)
	require.Len(t, published, 1)

	stats := d.Stats()
	assert.Equal(t, int64(2), stats.Recorded)
	assert.Equal(t, int64(2), stats.HandlerErrors)

	none, err := d.Record(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEventDispatcher_ConcurrentLanesBroadcastInSequenceOrder(t *testing.T) {
	ctx := context.Background()
	hub := &recordingBroadcaster{}
	d := NewEventDispatcher(repositories.NewMemoryEventLog(), hub)

	var wg sync.WaitGroup
	for lane := 0; lane < 8; lane++ {
		wg.Add(1)
		go func(lane int) {
			defer wg.Done()
			tracker := "MFBR-" + string(rune('A'+lane))
			for i := 0; i < 50; i++ {
				_, err := d.Record(ctx, []models.DomainEvent{violationEvent(uuid.New().String(), tracker, testStart)})
				assert.NoError(t, err)
			}
		}(lane)
	}
	wg.Wait()

	require.Len(t, hub.events, 400)
	for i, event := range hub.events {
		assert.Equal(t, int64(i+1), event.Sequence)
	}
}

func TestRedisEventBus_RelaysRemoteEvents(t *testing.T) {
	client := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := "vesselwatch:test:" + uuid.New().String()
	local := NewRedisEventBus(client, channel)
	remote := NewRedisEventBus(client, channel)

	hub := &recordingBroadcaster{}
	go local.Relay(ctx, hub)
	go local.Run(ctx)
	go remote.Run(ctx)

	// wait for the subscription before publishing
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, local.PublishEvents(ctx, []models.DomainEvent{violationEvent("own", "MFBR-0001", testStart)}))
	require.NoError(t, remote.PublishEvents(ctx, []models.DomainEvent{violationEvent("remote", "MFBR-0002", testStart)}))

	assert.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.events) == 1
	}, 3*time.Second, 20*time.Millisecond)

	hub.mu.Lock()
	assert.Equal(t, "remote", hub.events[0].ID)
	hub.mu.Unlock()
	assert.Equal(t, int64(1), local.Stats().Relayed)
}
