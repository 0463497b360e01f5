package workers

import (
	"testing"
	"time"
	"vesselwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMQTTPosition(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    models.PositionSample
		wantErr bool
	}{
		{
			name:    "tracker from topic",
			topic:   "vesselwatch/trackers/MFBR-0001/position",
			payload: `{"latitude":16.673,"longitude":120.3447,"timestamp":"2025-06-01T06:00:00Z"}`,
			want: models.PositionSample{
				TrackerID: "MFBR-0001", Latitude: 16.673, Longitude: 120.3447,
				Timestamp: testStart, Source: "mqtt",
			},
		},
		{
			name:    "payload tracker wins, unix time",
			topic:   "vesselwatch/trackers/ignored/position",
			payload: `{"trackerId":"MFBR-0002","latitude":16.6,"longitude":120.3,"ts":1748757600,"connectivityHint":"reconnecting"}`,
			want: models.PositionSample{
				TrackerID: "MFBR-0002", Latitude: 16.6, Longitude: 120.3,
				Timestamp: time.Unix(1748757600, 0).UTC(), ConnectivityHint: models.ConnectivityReconnecting, Source: "mqtt",
			},
		},
		{
			name:    "missing longitude",
			topic:   "vesselwatch/trackers/MFBR-0001/position",
			payload: `{"latitude":16.6}`,
			wantErr: true,
		},
		{
			name:    "not json",
			topic:   "vesselwatch/trackers/MFBR-0001/position",
			payload: `16.6,120.3`,
			wantErr: true,
		},
		{
			name:    "tracker id with spaces",
			topic:   "vesselwatch/trackers/x/position",
			payload: `{"trackerId":"bad id","latitude":16.6,"longitude":120.3}`,
			wantErr: true,
		},
		{
			name:    "no tracker",
			topic:   "position",
			payload: `{"latitude":16.6,"longitude":120.3}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMQTTPosition(tt.topic, []byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
