package services

import (
	"encoding/json"
	"testing"
	"vesselwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewViolationExport(t *testing.T) {
	event := models.DomainEvent{
		ID:        "evt-1",
		Sequence:  42,
		TrackerID: "MFBR-0007",
		Type:      models.EventViolation,
		Timestamp: testStart,
		Fields: models.EventFields{
			Geofence:     "Marine Sanctuary",
			FromArea:     "Open Sea",
			ToArea:       "Marine Sanctuary",
			DwellSeconds: 240,
			Position:     &models.GeoPoint{Latitude: 10.31, Longitude: 123.95},
		},
	}

	body, err := json.Marshal(newViolationExport(event))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "evt-1", decoded["event_id"])
	assert.Equal(t, float64(42), decoded["sequence"])
	assert.Equal(t, "Marine Sanctuary", decoded["to_area"])
	assert.Equal(t, float64(240), decoded["dwell_seconds"])
	assert.Equal(t, float64(testStart.Unix()), decoded["timestamp"])
	require.Contains(t, decoded, "location")
	assert.Equal(t, 10.31, decoded["location"].(map[string]interface{})["latitude"])
}

func TestNewViolationExport_NoPosition(t *testing.T) {
	msg := newViolationExport(models.DomainEvent{ID: "evt-2", Type: models.EventViolation, Timestamp: testStart})
	assert.Nil(t, msg.Location)

	body, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "location")
}

func TestViolationMessage(t *testing.T) {
	r := &models.NotificationRecord{
		TrackerID:    "MFBR-0007",
		BoatName:     "Bantay Dagat",
		MFBRNumber:   "MFBR-0007",
		OwnerName:    "J. Cruz",
		FromArea:     "Open Sea",
		ToArea:       "Marine Sanctuary",
		DwellMinutes: 4,
	}
	assert.Equal(t,
		"Bantay Dagat (MFBR-0007) has been idle in Marine Sanctuary for 4 minutes (from Open Sea). Owner: J. Cruz",
		violationMessage(r))

	assert.Equal(t, "MFBR-0009 has been idle in Marine Sanctuary for 3 minutes",
		violationMessage(&models.NotificationRecord{TrackerID: "MFBR-0009", ToArea: "Marine Sanctuary", DwellMinutes: 3}))
}
