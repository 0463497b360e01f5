package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.IdleThreshold)
	assert.Equal(t, 60*time.Second, cfg.StatusCheckInterval)

	det := cfg.DetectionConfig()
	assert.Equal(t, 8, det.OfflineAfterMissed)
	assert.Equal(t, 10, det.ReconnectingAfterMissed)
	assert.Equal(t, 25.0, det.IdleDriftMeters)
}

func TestLoad_TestModeAndOverrides(t *testing.T) {
	t.Setenv("TEST_MODE", "true")
	t.Setenv("IDLE_THRESHOLD", "30m")
	t.Setenv("OFFLINE_THRESHOLD", "300")
	t.Setenv("STATUS_CHECK_INTERVAL", "bogus")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg := Load()
	assert.Equal(t, time.Minute, cfg.IdleThreshold, "test mode wins")
	assert.Equal(t, 300*time.Second, cfg.OfflineThreshold)
	assert.Equal(t, 60*time.Second, cfg.StatusCheckInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, 5, cfg.DetectionConfig().OfflineAfterMissed)
}

func TestParseAreas(t *testing.T) {
	data := []byte(`
geofences:
  - name: Bauang
    center: {latitude: 16.53, longitude: 120.33}
    radius_meters: 4000
  - name: San Juan
    center: {latitude: 16.673, longitude: 120.3447}
    radius_meters: 3000
    watched: true
vessels:
  - tracker_id: MFBR-0001
    boat_name: Bangka Uno
    owner_name: Juan Dela Cruz
    owner_contact: "09171234567"
    home_area: Bauang
`)

	file, err := ParseAreas(data)
	require.NoError(t, err)
	require.Len(t, file.Geofences, 2)
	assert.False(t, file.Geofences[0].Watched)
	assert.True(t, file.Geofences[1].Watched)
	assert.Equal(t, 4000.0, file.Geofences[0].RadiusMeters)
	require.Len(t, file.Vessels, 1)
	assert.Equal(t, "Bauang", file.Vessels[0].HomeArea)
	assert.Equal(t, "09171234567", file.Vessels[0].OwnerContact)
}

func TestParseAreas_Invalid(t *testing.T) {
	tests := map[string]string{
		"no name":       "geofences:\n  - radius_meters: 10\n",
		"zero radius":   "geofences:\n  - name: A\n",
		"duplicate":     "geofences:\n  - {name: A, radius_meters: 1}\n  - {name: A, radius_meters: 1}\n",
		"bad center":    "geofences:\n  - {name: A, radius_meters: 1, center: {latitude: 91, longitude: 0}}\n",
		"not yaml list": "geofences: 3\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAreas([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadAreas_Defaults(t *testing.T) {
	file, err := LoadAreas("")
	require.NoError(t, err)
	assert.Equal(t, DefaultGeofences(), file.Geofences)
}
