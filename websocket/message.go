package websocket

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
)

type resumeData struct {
	AfterSequence int64 `json:"after_sequence"`
}

type subscribeData struct {
	TrackerIDs []string `json:"tracker_ids"`
}

type positionData struct {
	TrackerID        string                    `json:"trackerId"`
	Latitude         *float64                  `json:"latitude"`
	Longitude        *float64                  `json:"longitude"`
	Timestamp        *time.Time                `json:"timestamp,omitempty"`
	ConnectivityHint models.ConnectivityStatus `json:"connectivityHint,omitempty"`
}

func (c *Client) handleMessage(data []byte) {
	var request models.WSRequest
	if err := json.Unmarshal(data, &request); err != nil {
		c.reply(errorMessage(models.WSErrorInvalidMessage, "Invalid message format", ""))
		return
	}

	switch request.Type {
	case models.WSTypePing:
		c.reply(models.WSMessage{
			Type:      models.WSTypePong,
			RequestID: request.RequestID,
			Timestamp: time.Now(),
		})
	case models.WSRequestResume:
		c.handleResume(request)
	case models.WSRequestSubscribe:
		c.handleSubscribe(request, true)
	case models.WSRequestUnsubscribe:
		c.handleSubscribe(request, false)
	case models.WSRequestPosition:
		c.handlePosition(request)
	default:
		c.reply(errorMessage(models.WSErrorInvalidMessage, "Unknown message type", request.RequestID))
	}
}

func (c *Client) handleResume(request models.WSRequest) {
	var data resumeData
	if err := unmarshalMapToStruct(request.Data, &data); err != nil || data.AfterSequence < 0 {
		c.reply(errorMessage(models.WSErrorInvalidMessage, "Invalid resume data", request.RequestID))
		return
	}

	c.hub.requestResume(c, data.AfterSequence)
}

func (c *Client) handleSubscribe(request models.WSRequest, add bool) {
	var data subscribeData
	if err := unmarshalMapToStruct(request.Data, &data); err != nil {
		c.reply(errorMessage(models.WSErrorInvalidMessage, "Invalid subscription data", request.RequestID))
		return
	}

	if add {
		c.filter.Add(data.TrackerIDs...)
	} else {
		c.filter.Remove(data.TrackerIDs...)
	}

	c.reply(successMessage("Subscription updated", map[string]interface{}{
		"trackers": c.filter.IDs(),
	}, request.RequestID))
}

func (c *Client) handlePosition(request models.WSRequest) {
	if c.hub.ingestor == nil {
		c.reply(errorMessage(models.WSErrorInvalidMessage, "Position reports are not accepted on this channel", request.RequestID))
		return
	}

	var data positionData
	if err := unmarshalMapToStruct(request.Data, &data); err != nil {
		c.reply(errorMessage(models.WSErrorInvalidMessage, "Invalid position data", request.RequestID))
		return
	}

	sample, err := data.toSample()
	if err != nil {
		c.reply(errorMessage(models.WSErrorInvalidLocation, err.Error(), request.RequestID))
		return
	}

	if err := c.hub.ingestor.Submit(sample); err != nil {
		logrus.Warnf("Position report from client %s rejected: %v", c.connectionID, err)
		c.reply(errorMessage(models.WSErrorInvalidMessage, err.Error(), request.RequestID))
		return
	}

	c.reply(successMessage("Position accepted", nil, request.RequestID))
}

func (p positionData) toSample() (models.PositionSample, error) {
	trackerID := strings.TrimSpace(p.TrackerID)
	if trackerID == "" {
		return models.PositionSample{}, errors.New("trackerId is required")
	}
	if p.Latitude == nil || p.Longitude == nil {
		return models.PositionSample{}, errors.New("latitude and longitude are required")
	}
	if !utils.IsValidCoordinate(*p.Latitude, *p.Longitude) {
		return models.PositionSample{}, errors.New("invalid coordinates")
	}
	if p.ConnectivityHint != "" && !p.ConnectivityHint.Valid() {
		return models.PositionSample{}, errors.New("invalid connectivity hint")
	}

	sample := models.PositionSample{
		TrackerID:        trackerID,
		Latitude:         *p.Latitude,
		Longitude:        *p.Longitude,
		Timestamp:        time.Now(),
		ConnectivityHint: p.ConnectivityHint,
		Source:           "websocket",
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		sample.Timestamp = *p.Timestamp
	}
	return sample, nil
}

func unmarshalMapToStruct(data map[string]interface{}, target interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, target)
}
