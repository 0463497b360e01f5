package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"
	"vesselwatch/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	api := fs.String("api", getEnv("VESSELWATCH_API_URL", "http://localhost:8080/api/v1"), "API base URL")
	tracker := fs.String("tracker", "MFBR-0001", "tracker id to sail")
	interval := fs.Duration("interval", 500*time.Millisecond, "wall clock delay between reports")
	step := fs.Duration("step", time.Minute, "report spacing in vessel time")
	hold := fs.Int("hold", 20, "reports spent idle at the turning point")
	if err := fs.Parse(args); err != nil {
		return err
	}

	voyage := DefaultVoyage(*tracker)
	voyage.Step = *step
	voyage.HoldSamples = *hold

	// Vessel time is backdated so the voyage ends now
	samples := voyage.Samples(time.Now())
	client := &positionClient{
		baseURL: *api,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	logrus.Infof("⛵ Sailing %s: %d reports, %s apart", *tracker, len(samples), *step)
	for i, sample := range samples {
		if err := client.submit(ctx, sample); err != nil {
			return fmt.Errorf("report %d: %w", i, err)
		}
		logrus.Debugf("Sent %s %.5f,%.5f", sample.Timestamp.Format(time.RFC3339), *sample.Latitude, *sample.Longitude)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(*interval):
		}
	}
	logrus.Info("✅ Voyage complete")
	return nil
}

type positionClient struct {
	baseURL string
	http    *http.Client
}

// submit posts one report, retrying while the server answers 5xx or is unreachable
func (pc *positionClient) submit(ctx context.Context, sample models.PositionRequest) error {
	body, err := json.Marshal(sample)
	if err != nil {
		return err
	}

	_, err = backoff.Retry(ctx, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.baseURL+"/positions", bytes.NewReader(body))
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := pc.http.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return resp.StatusCode, fmt.Errorf("server answered %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return resp.StatusCode, backoff.Permanent(fmt.Errorf("rejected with %d: %s", resp.StatusCode, msg))
		}
		return resp.StatusCode, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	return err
}
