package websocket

import (
	"net/http"
	"time"
	"vesselwatch/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket upgrader configuration
var DefaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from the operator LAN; origins are not restricted
		logrus.Debugf("WebSocket connection from origin: %s", r.Header.Get("Origin"))
		return true
	},
}

func domainEventMessage(event models.DomainEvent) models.WSMessage {
	return models.WSMessage{
		Type:      models.WSTypeDomainEvent,
		Data:      event,
		TrackerID: event.TrackerID,
		Sequence:  event.Sequence,
		Timestamp: time.Now(),
	}
}

// replayComplete marks the end of a replay page. When more is set the
// receiver asks again from lastSequence.
func replayComplete(lastSequence int64, more bool) models.WSMessage {
	return models.WSMessage{
		Type: models.WSTypeReplayComplete,
		Data: ReplayStatus{
			LastSequence: lastSequence,
			More:         more,
		},
		Timestamp: time.Now(),
	}
}

type ReplayStatus struct {
	LastSequence int64 `json:"lastSequence"`
	More         bool  `json:"more"`
}

// successMessage creates a standardized success response
func successMessage(message string, data interface{}, requestID string) models.WSMessage {
	responseData := map[string]interface{}{
		"success": true,
		"message": message,
	}

	if data != nil {
		responseData["data"] = data
	}

	return models.WSMessage{
		Type:      models.WSTypeSuccess,
		Data:      responseData,
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// errorMessage creates a standardized error response
func errorMessage(code, message string, requestID string) models.WSMessage {
	return models.WSMessage{
		Type: models.WSTypeError,
		Data: models.WSError{
			Code:      code,
			Message:   message,
			Timestamp: time.Now(),
		},
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}
