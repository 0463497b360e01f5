package utils

import (
	"fmt"
	"strings"
	"time"
)

// RouteKey identifies a vessel travelling from its home area into another area.
// It is the identity used for violation dedup.
type RouteKey struct {
	TrackerID string `json:"trackerId"`
	FromArea  string `json:"fromArea"`
	ToArea    string `json:"toArea"`
}

func NewRouteKey(trackerID, fromArea, toArea string) RouteKey {
	return RouteKey{
		TrackerID: strings.TrimSpace(trackerID),
		FromArea:  normalizeArea(fromArea),
		ToArea:    normalizeArea(toArea),
	}
}

func (k RouteKey) String() string {
	return k.TrackerID + "|" + k.FromArea + "|" + k.ToArea
}

// EpisodeKey identifies a single idle episode of a tracker inside a fence
func EpisodeKey(trackerID, fence string, since time.Time) string {
	return fmt.Sprintf("%s|%s|%d", trackerID, normalizeArea(fence), since.UnixMilli())
}

// FormatReportNumber renders report numbers as RPT-YYYY-NNNN
func FormatReportNumber(year int, seq int64) string {
	return fmt.Sprintf("RPT-%d-%04d", year, seq)
}

func normalizeArea(area string) string {
	area = strings.TrimSpace(area)
	if area == "" {
		return "unknown"
	}
	return strings.Join(strings.Fields(area), " ")
}
