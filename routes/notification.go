// routes/notification.go
package routes

import (
	"vesselwatch/controllers"

	"github.com/gin-gonic/gin"
)

// SetupNotificationRoutes configures boundary notification routes
func SetupNotificationRoutes(router *gin.RouterGroup, notificationController *controllers.NotificationController) {
	notifications := router.Group("/notifications")

	notifications.GET("", notificationController.GetNotifications)
	notifications.GET("/unread-count", notificationController.GetUnreadCount)
	notifications.GET("/stats", notificationController.GetStats)
	notifications.GET("/active", notificationController.GetActiveViolations)
	notifications.PUT("/read-all", notificationController.MarkAllAsRead)

	notifications.GET("/:notificationId", notificationController.GetNotification)
	notifications.PUT("/:notificationId/read", notificationController.MarkAsRead)
	notifications.PUT("/:notificationId/dismiss", notificationController.Dismiss)
	notifications.PUT("/:notificationId/report-status", notificationController.UpdateReportStatus)
	notifications.GET("/:notificationId/audit", notificationController.GetAuditTrail)
}
