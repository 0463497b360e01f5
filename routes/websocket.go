// routes/websocket.go
package routes

import (
	"vesselwatch/controllers"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes configures the live channel endpoint
func SetupWebSocketRoutes(router *gin.Engine, wsController *controllers.WebSocketController) {
	router.GET("/ws", wsController.HandleWebSocket)
}
