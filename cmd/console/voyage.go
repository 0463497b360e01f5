package main

import (
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"
)

// Voyage is a scripted trip between waypoints. After every leg except the
// last the vessel holds still at the waypoint for HoldSamples reports.
type Voyage struct {
	TrackerID   string
	Waypoints   []models.GeoPoint
	LegSamples  int
	HoldSamples int
	Step        time.Duration
}

// DefaultVoyage sails from San Fernando into San Juan waters, idles long
// enough to trip a violation and sails home.
func DefaultVoyage(trackerID string) Voyage {
	return Voyage{
		TrackerID: trackerID,
		Waypoints: []models.GeoPoint{
			{Latitude: 16.6159, Longitude: 120.3176},
			{Latitude: 16.6730, Longitude: 120.3447},
			{Latitude: 16.6159, Longitude: 120.3176},
		},
		LegSamples:  10,
		HoldSamples: 20,
		Step:        time.Minute,
	}
}

// Samples renders the voyage as position reports spaced Step apart, with
// the last one stamped at end.
func (v Voyage) Samples(end time.Time) []models.PositionRequest {
	if len(v.Waypoints) == 0 {
		return nil
	}

	var points []models.GeoPoint
	points = append(points, v.Waypoints[0])
	for i := 1; i < len(v.Waypoints); i++ {
		from, to := v.Waypoints[i-1], v.Waypoints[i]
		for s := 1; s <= v.LegSamples; s++ {
			f := float64(s) / float64(v.LegSamples)
			points = append(points, models.GeoPoint{
				Latitude:  utils.RoundToDecimalPlaces(from.Latitude+(to.Latitude-from.Latitude)*f, 6),
				Longitude: utils.RoundToDecimalPlaces(from.Longitude+(to.Longitude-from.Longitude)*f, 6),
			})
		}
		if i < len(v.Waypoints)-1 {
			for h := 0; h < v.HoldSamples; h++ {
				points = append(points, to)
			}
		}
	}

	start := end.Add(-time.Duration(len(points)-1) * v.Step)
	samples := make([]models.PositionRequest, len(points))
	for i, p := range points {
		lat, lon := p.Latitude, p.Longitude
		samples[i] = models.PositionRequest{
			TrackerID: v.TrackerID,
			Latitude:  &lat,
			Longitude: &lon,
			Timestamp: utils.TimePtr(start.Add(time.Duration(i) * v.Step)),
		}
	}
	return samples
}
