package controllers

import (
	"vesselwatch/utils"
	"vesselwatch/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
}

func NewWebSocketController(hub *websocket.Hub) *WebSocketController {
	return &WebSocketController{
		hub:      hub,
		upgrader: websocket.DefaultUpgrader,
	}
}

// HandleWebSocket upgrades a dashboard or console connection
// @Summary WebSocket endpoint
// @Description Live domain events and notifications. after_sequence replays the event log first; trackers filters by tracker ID.
// @Tags WebSocket
// @Param after_sequence query int false "Replay events after this sequence"
// @Param trackers query string false "Comma separated tracker IDs"
// @Success 101 "Switching Protocols"
// @Router /ws [get]
func (wsc *WebSocketController) HandleWebSocket(c *gin.Context) {
	conn, err := wsc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logrus.Errorf("Failed to upgrade WebSocket connection: %v", err)
		return
	}

	client := websocket.NewClient(conn, wsc.hub, c.Request)
	wsc.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	logrus.WithFields(logrus.Fields{
		"client_id": client.ID(),
		"ip":        c.ClientIP(),
	}).Info("WebSocket connection established")
}

// GetStats reports hub connection and delivery counters
func (wsc *WebSocketController) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, "WebSocket stats retrieved", wsc.hub.GetStats())
}
