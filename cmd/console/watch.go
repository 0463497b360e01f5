package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"
	"vesselwatch/services"
	"vesselwatch/utils"
	"vesselwatch/websocket"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	url := fs.String("url", getEnv("VESSELWATCH_WS_URL", "ws://localhost:8080/ws"), "hub endpoint")
	trackers := fs.String("trackers", "", "comma separated tracker ids to follow (default all)")
	after := fs.Int64("after", -1, "resume after this event sequence (-1 for live only)")
	redisURL := fs.String("redis", os.Getenv("REDIS_URL"), "share the dedup window through redis")
	window := fs.Duration("window", services.DefaultDedupWindow, "suppression window per vessel route")
	player := fs.String("player", os.Getenv("ALERT_PLAYER"), "command used to play the cue asset, e.g. \"mpg123 -q\"")
	asset := fs.String("asset", getEnv("ALERT_CUE_ASSET", "alert.mp3"), "cue asset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dedup, closeDedup, err := newConsoleDedup(*redisURL, *window)
	if err != nil {
		return err
	}
	defer closeDedup()

	cue := services.NewAttentionCue(services.NewTerminalCuePlayer(os.Stdout, strings.Fields(*player)...), *asset)
	go unlockOnInput(ctx, os.Stdin, cue)

	presenter := services.NewAlertPresenter(dedup, cue, utils.SystemClock{}, printToast(os.Stdout))

	var trackerIDs []string
	if *trackers != "" {
		trackerIDs = strings.Split(*trackers, ",")
	}

	sub := websocket.NewSubscriber(websocket.SubscriberConfig{
		URL:           *url,
		TrackerIDs:    trackerIDs,
		AfterSequence: *after,
		OnStatus: func(status string) {
			logrus.Infof("📡 Channel %s", status)
		},
	}, newWatchHandler(presenter, os.Stdout))

	fmt.Println("Press Enter once to enable the audible alert.")
	return sub.Run(ctx)
}

// newConsoleDedup uses the shared redis window when one is configured so
// several consoles in the same office show each alert once.
func newConsoleDedup(redisURL string, window time.Duration) (interfaces.DedupStore, func(), error) {
	local, err := services.NewMemoryDedupWindow(window, services.DefaultDedupRetention, 0)
	if err != nil {
		return nil, nil, err
	}
	if redisURL == "" {
		return local, func() {}, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	shared := services.NewFallbackDedupWindow(services.NewRedisDedupWindow(client, window), local)
	return shared, func() { client.Close() }, nil
}

// unlockOnInput enables the cue on the operator's first keystroke
func unlockOnInput(ctx context.Context, in io.Reader, cue *services.AttentionCue) {
	reader := bufio.NewReader(in)
	if _, err := reader.ReadString('\n'); err != nil && ctx.Err() == nil {
		logrus.Debugf("Stopped reading input: %v", err)
		return
	}
	cue.Unlock()
	logrus.Info("🔔 Audible alerts enabled")
}

func newWatchHandler(presenter *services.AlertPresenter, out io.Writer) websocket.EnvelopeHandler {
	return func(ctx context.Context, msg models.WSEnvelope) {
		switch msg.Type {
		case models.WSTypeDomainEvent:
			var event models.DomainEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logrus.Warnf("Undecodable domain event %d: %v", msg.Sequence, err)
				return
			}
			if event.Type == models.EventViolation {
				presenter.Present(ctx, event)
				return
			}
			fmt.Fprintf(out, "%s  #%d %-16s %-12s %s\n",
				event.Timestamp.Local().Format("15:04:05"), event.Sequence, event.Type, event.TrackerID, event.Message)

		case models.WSTypeViolationCleared:
			var cleared models.WSViolationCleared
			if err := json.Unmarshal(msg.Data, &cleared); err == nil {
				fmt.Fprintf(out, "✅ %s cleared in %s (%s)\n", cleared.TrackerID, cleared.Geofence, cleared.Reason)
			}

		case models.WSTypeError:
			logrus.Warnf("Hub error: %s", string(msg.Data))
		}
	}
}

func printToast(out io.Writer) func(services.Toast) {
	return func(t services.Toast) {
		fmt.Fprintf(out, "\n🚨 %s\n   %s\n   %s\n\n", t.Title, t.Body, t.ShownAt.Local().Format(time.RFC1123))
	}
}
