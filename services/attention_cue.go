package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"

	"github.com/sirupsen/logrus"
)

const (
	DefaultCueAsset     = "/notification-sound.mp3"
	DefaultCueFrequency = 930.0
	DefaultCueDuration  = 120 * time.Millisecond
	DefaultCueTimeout   = 5 * time.Second
)

var ErrCueUnavailable = errors.New("cue player unavailable")

// AttentionCue plays the alert sound for a presented alert. Playback stays
// locked until the operator has interacted once, mirroring browser autoplay
// rules. It never fails the caller: a failed asset falls back to a tone and
// a failed tone is only logged.
type AttentionCue struct {
	player    interfaces.CuePlayer
	asset     string
	frequency float64
	duration  time.Duration
	timeout   time.Duration
	unlocked  atomic.Bool
}

func NewAttentionCue(player interfaces.CuePlayer, asset string) *AttentionCue {
	if asset == "" {
		asset = DefaultCueAsset
	}
	return &AttentionCue{
		player:    player,
		asset:     asset,
		frequency: DefaultCueFrequency,
		duration:  DefaultCueDuration,
		timeout:   DefaultCueTimeout,
	}
}

func (a *AttentionCue) Unlock() {
	if !a.unlocked.Swap(true) {
		logrus.Debug("Attention cue unlocked")
	}
}

func (a *AttentionCue) Unlocked() bool {
	return a.unlocked.Load()
}

// Alert plays the cue and reports which mode played, or "" when nothing did
func (a *AttentionCue) Alert(ctx context.Context) string {
	if !a.Unlocked() {
		logrus.Debug("Attention cue skipped, waiting for first user interaction")
		return ""
	}
	if a.player == nil {
		return ""
	}

	err := a.player.PlayAsset(ctx, a.asset)
	if err == nil {
		return "asset"
	}
	logrus.Debugf("Cue asset %s failed, falling back to tone: %v", a.asset, err)

	if err := a.player.PlayTone(ctx, a.frequency, a.duration); err != nil {
		logrus.Warnf("Attention cue failed: %v", err)
		return ""
	}
	return "tone"
}

// Ring plays the cue on its own goroutine, giving the player at most the
// cue timeout. The channel receives the mode that played and is closed.
func (a *AttentionCue) Ring() <-chan string {
	done := make(chan string, 1)
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		done <- a.Alert(ctx)
	}()
	return done
}

// TerminalCuePlayer plays the asset through an external command when one is
// configured (e.g. "mpg123 -q") and rings the terminal bell for tones.
type TerminalCuePlayer struct {
	out     io.Writer
	command []string
}

func NewTerminalCuePlayer(out io.Writer, command ...string) *TerminalCuePlayer {
	return &TerminalCuePlayer{out: out, command: command}
}

func (p *TerminalCuePlayer) PlayAsset(ctx context.Context, asset string) error {
	if len(p.command) == 0 {
		return ErrCueUnavailable
	}

	args := append(append([]string{}, p.command[1:]...), asset)
	if err := exec.CommandContext(ctx, p.command[0], args...).Run(); err != nil {
		return fmt.Errorf("failed to play %s: %w", asset, err)
	}
	return nil
}

func (p *TerminalCuePlayer) PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error {
	if p.out == nil {
		return ErrCueUnavailable
	}
	_, err := io.WriteString(p.out, "\a")
	return err
}

// BroadcastCuePlayer asks connected dashboards to play the cue
type BroadcastCuePlayer struct {
	broadcaster interfaces.WebSocketBroadcaster
}

func NewBroadcastCuePlayer(broadcaster interfaces.WebSocketBroadcaster) *BroadcastCuePlayer {
	return &BroadcastCuePlayer{broadcaster: broadcaster}
}

func (p *BroadcastCuePlayer) PlayAsset(ctx context.Context, asset string) error {
	if p.broadcaster == nil || p.broadcaster.ClientCount() == 0 {
		return ErrCueUnavailable
	}
	p.broadcaster.BroadcastAttentionCue(models.WSAttentionCue{Mode: "asset", Asset: asset})
	return nil
}

func (p *BroadcastCuePlayer) PlayTone(ctx context.Context, frequencyHz float64, duration time.Duration) error {
	if p.broadcaster == nil || p.broadcaster.ClientCount() == 0 {
		return ErrCueUnavailable
	}
	p.broadcaster.BroadcastAttentionCue(models.WSAttentionCue{
		Mode:        "tone",
		FrequencyHz: frequencyHz,
		DurationMs:  duration.Milliseconds(),
	})
	return nil
}
