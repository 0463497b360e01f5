package services

import (
	"context"
	"testing"
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenterFixture struct {
	presenter *AlertPresenter
	player    *scriptedPlayer
	cue       *AttentionCue
	clock     *utils.ManualClock
	toasts    []Toast
}

func newPresenterFixture(t *testing.T) *presenterFixture {
	t.Helper()
	f := &presenterFixture{
		player: &scriptedPlayer{},
		clock:  utils.NewManualClock(testStart),
	}
	f.cue = NewAttentionCue(f.player, "")
	f.cue.Unlock()
	f.presenter = NewAlertPresenter(newMemoryWindow(t, 0), f.cue, f.clock, func(toast Toast) {
		f.toasts = append(f.toasts, toast)
	})
	return f
}

func TestAlertPresenter_OneAlertPerWindow(t *testing.T) {
	ctx := context.Background()
	f := newPresenterFixture(t)

	require.NoError(t, f.presenter.HandleEvent(ctx, violationEvent("evt-1", "MFBR-0001", f.clock.Now())))
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.presenter.HandleEvent(ctx, violationEvent("evt-2", "MFBR-0001", f.clock.Now())))

	require.Len(t, f.toasts, 1)
	require.Eventually(t, func() bool { return len(f.player.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"asset:" + DefaultCueAsset}, f.player.snapshot())
	assert.Equal(t, utils.NewRouteKey("MFBR-0001", "San Fernando", "San Juan"), f.toasts[0].Key)

	stats := f.presenter.Stats()
	assert.Equal(t, int64(1), stats.Presented)
	assert.Equal(t, int64(1), stats.Suppressed)
}

func TestAlertPresenter_AlertsAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	f := newPresenterFixture(t)

	assert.True(t, f.presenter.Present(ctx, violationEvent("evt-1", "MFBR-0001", f.clock.Now())))
	f.clock.Advance(DefaultDedupWindow)
	assert.True(t, f.presenter.Present(ctx, violationEvent("evt-2", "MFBR-0001", f.clock.Now())))

	assert.Len(t, f.toasts, 2)
	assert.Eventually(t, func() bool { return len(f.player.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestAlertPresenter_SlowCueDoesNotDelayToast(t *testing.T) {
	ctx := context.Background()
	player := &stalledPlayer{release: make(chan struct{})}
	cue := NewAttentionCue(player, "")
	cue.Unlock()

	var toasts []Toast
	presenter := NewAlertPresenter(newMemoryWindow(t, 0), cue, utils.NewManualClock(testStart), func(toast Toast) {
		toasts = append(toasts, toast)
	})

	done := make(chan bool, 1)
	go func() { done <- presenter.Present(ctx, violationEvent("evt-1", "MFBR-0001", testStart)) }()

	select {
	case shown := <-done:
		assert.True(t, shown)
	case <-time.After(time.Second):
		t.Fatal("toast waited for the cue player")
	}
	require.Len(t, toasts, 1)
	assert.Empty(t, player.snapshot())

	close(player.release)
	assert.Eventually(t, func() bool { return len(player.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAttentionCue_RingTimesOut(t *testing.T) {
	player := &stalledPlayer{release: make(chan struct{})}
	cue := NewAttentionCue(player, "")
	cue.timeout = 20 * time.Millisecond
	cue.Unlock()

	select {
	case mode := <-cue.Ring():
		assert.Equal(t, "tone", mode)
	case <-time.After(time.Second):
		t.Fatal("stalled player was not cut off")
	}
	assert.Equal(t, []string{"tone"}, player.snapshot())
}

func TestAlertPresenter_DifferentRoutesNotSuppressed(t *testing.T) {
	ctx := context.Background()
	f := newPresenterFixture(t)

	assert.True(t, f.presenter.Present(ctx, violationEvent("evt-1", "MFBR-0001", f.clock.Now())))
	assert.True(t, f.presenter.Present(ctx, violationEvent("evt-2", "MFBR-0002", f.clock.Now())))
	assert.Len(t, f.toasts, 2)
}

func TestAlertPresenter_IgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	f := newPresenterFixture(t)

	for _, et := range []models.EventType{models.EventIdleStart, models.EventGeofenceEnter, models.EventConnectivityOffline} {
		require.NoError(t, f.presenter.HandleEvent(ctx, models.DomainEvent{ID: string(et), TrackerID: "MFBR-0001", Type: et}))
	}
	assert.Empty(t, f.toasts)
}

func TestAttentionCue_LockedUntilUnlock(t *testing.T) {
	player := &scriptedPlayer{}
	cue := NewAttentionCue(player, "/chime.mp3")

	assert.Equal(t, "", cue.Alert(context.Background()))
	assert.Empty(t, player.played)

	cue.Unlock()
	assert.True(t, cue.Unlocked())
	assert.Equal(t, "asset", cue.Alert(context.Background()))
	assert.Equal(t, []string{"asset:/chime.mp3"}, player.played)
}

func TestAttentionCue_FallsBackToTone(t *testing.T) {
	player := &scriptedPlayer{failAsset: true}
	cue := NewAttentionCue(player, "")
	cue.Unlock()

	assert.Equal(t, "tone", cue.Alert(context.Background()))
	assert.Equal(t, []string{"tone"}, player.played)
}

func TestAttentionCue_FailureIsSwallowed(t *testing.T) {
	player := &scriptedPlayer{failAsset: true, failTone: true}
	cue := NewAttentionCue(player, "")
	cue.Unlock()

	assert.Equal(t, "", cue.Alert(context.Background()))
}

func TestBroadcastCuePlayer(t *testing.T) {
	hub := &recordingBroadcaster{}
	player := NewBroadcastCuePlayer(hub)

	assert.ErrorIs(t, player.PlayAsset(context.Background(), DefaultCueAsset), ErrCueUnavailable)

	hub.clients = 1
	require.NoError(t, player.PlayTone(context.Background(), DefaultCueFrequency, DefaultCueDuration))
	require.Len(t, hub.cues, 1)
	assert.Equal(t, "tone", hub.cues[0].Mode)
	assert.Equal(t, int64(120), hub.cues[0].DurationMs)
	assert.Equal(t, 930.0, hub.cues[0].FrequencyHz)
}
