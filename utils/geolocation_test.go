package utils

import (
	"math"
	"testing"
	"vesselwatch/models"

	"github.com/stretchr/testify/assert"
)

var (
	sanFernando = models.GeoPoint{Latitude: 16.6159, Longitude: 120.3176}
	sanJuan     = models.GeoPoint{Latitude: 16.6730, Longitude: 120.3447}
)

func TestDistanceMeters(t *testing.T) {
	assert.Equal(t, 0.0, DistanceMeters(sanFernando, sanFernando))

	// one degree of latitude on a 6371 km sphere
	oneDegree := DistanceMeters(models.GeoPoint{Latitude: 0, Longitude: 0}, models.GeoPoint{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111194.93, oneDegree, 0.5)

	d := DistanceMeters(sanFernando, sanJuan)
	assert.InDelta(t, d, DistanceMeters(sanJuan, sanFernando), 1e-6)
	assert.InDelta(t, 6960, d, 150)
}

func TestBearingDegrees(t *testing.T) {
	tests := []struct {
		name string
		to   models.GeoPoint
		want float64
	}{
		{"north", models.GeoPoint{Latitude: 1, Longitude: 0}, 0},
		{"east", models.GeoPoint{Latitude: 0, Longitude: 1}, 90},
		{"south", models.GeoPoint{Latitude: -1, Longitude: 0}, 180},
		{"west", models.GeoPoint{Latitude: 0, Longitude: -1}, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDegrees(models.GeoPoint{Latitude: 0, Longitude: 0}, tt.to)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.Less(t, got, 360.0)
		})
	}
}

func TestIsInside(t *testing.T) {
	fence := models.Geofence{Name: "San Juan", Center: sanJuan, RadiusMeters: 3000}

	assert.True(t, IsInside(sanJuan, fence))
	assert.True(t, IsInside(OffsetPoint(sanJuan, 45, 2999), fence))
	assert.False(t, IsInside(OffsetPoint(sanJuan, 45, 3001), fence))
	assert.False(t, IsInside(sanFernando, fence))
}

func TestOffsetPointRoundTrip(t *testing.T) {
	for _, bearing := range []float64{0, 37, 90, 181, 300} {
		p := OffsetPoint(sanJuan, bearing, 5000)
		assert.InDelta(t, 5000, DistanceMeters(sanJuan, p), 0.01)
	}
}

func TestIsValidCoordinate(t *testing.T) {
	assert.True(t, IsValidCoordinate(16.6, 120.3))
	assert.True(t, IsValidCoordinate(-90, 180))
	assert.False(t, IsValidCoordinate(math.NaN(), 120))
	assert.False(t, IsValidCoordinate(16, math.Inf(1)))
	assert.False(t, IsValidCoordinate(91, 0))
	assert.False(t, IsValidCoordinate(0, -181))
}

func TestCalculateHeading(t *testing.T) {
	assert.Equal(t, "N", CalculateHeading(0))
	assert.Equal(t, "E", CalculateHeading(90))
	assert.Equal(t, "SW", CalculateHeading(225))
	assert.Equal(t, "N", CalculateHeading(359))
}
