package controllers

import (
	"errors"
	"vesselwatch/models"
	"vesselwatch/services"
	"vesselwatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type NotificationController struct {
	notificationService *services.NotificationService
}

func NewNotificationController(notificationService *services.NotificationService) *NotificationController {
	return &NotificationController{
		notificationService: notificationService,
	}
}

// GetNotifications lists boundary notifications, newest first
// @Summary Get notifications
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(20)
// @Param status query string false "pending, read or dismissed"
// @Param trackerId query string false "Tracker filter"
// @Success 200 {object} models.APIResponse{data=[]models.NotificationRecord}
// @Router /notifications [get]
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	var query models.NotificationListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}
	query.Page, query.PageSize = utils.NormalizePage(query.Page, query.PageSize)

	records, total, err := nc.notificationService.List(c.Request.Context(), query)
	if err != nil {
		logrus.Errorf("Failed to list notifications: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to get notifications")
		return
	}

	meta := utils.CreatePaginationMeta(query.Page, query.PageSize, total)
	utils.SuccessResponseWithMeta(c, "Notifications retrieved", records, meta)
}

func (nc *NotificationController) GetNotification(c *gin.Context) {
	record, err := nc.notificationService.Get(c.Request.Context(), c.Param("notificationId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Notification retrieved", record)
}

func (nc *NotificationController) MarkAsRead(c *gin.Context) {
	record, err := nc.notificationService.MarkRead(c.Request.Context(), c.Param("notificationId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Notification marked as read", record)
}

func (nc *NotificationController) MarkAllAsRead(c *gin.Context) {
	modified, err := nc.notificationService.MarkAllRead(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to mark all notifications read: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to mark notifications as read")
		return
	}
	utils.SuccessResponse(c, "All notifications marked as read", gin.H{"modified": modified})
}

func (nc *NotificationController) Dismiss(c *gin.Context) {
	record, err := nc.notificationService.Dismiss(c.Request.Context(), c.Param("notificationId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Notification dismissed", record)
}

// UpdateReportStatus records an investigation step for a violation report.
// A request that changes nothing answers 200 with the unchanged record.
func (nc *NotificationController) UpdateReportStatus(c *gin.Context) {
	var req models.ReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("notificationId")

	record, err := nc.notificationService.UpdateReportStatus(ctx, id, req)
	if errors.Is(err, utils.ErrNoChanges) {
		current, getErr := nc.notificationService.Get(ctx, id)
		if getErr != nil {
			utils.HandleServiceError(c, getErr)
			return
		}
		utils.SuccessResponse(c, "No changes detected", current)
		return
	}
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Report status updated", record)
}

func (nc *NotificationController) GetAuditTrail(c *gin.Context) {
	entries, err := nc.notificationService.AuditTrail(c.Request.Context(), c.Param("notificationId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	status, remarks := services.ReplayAudit(entries)
	utils.SuccessResponse(c, "Audit trail retrieved", gin.H{
		"entries":       entries,
		"currentStatus": status,
		"remarks":       remarks,
	})
}

func (nc *NotificationController) GetUnreadCount(c *gin.Context) {
	count, err := nc.notificationService.UnreadCount(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to count unread notifications: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to count unread notifications")
		return
	}
	utils.SuccessResponse(c, "Unread count retrieved", gin.H{"unreadCount": count})
}

func (nc *NotificationController) GetStats(c *gin.Context) {
	stats, err := nc.notificationService.Statistics(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to compute notification stats: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to get notification stats")
		return
	}
	utils.SuccessResponse(c, "Notification stats retrieved", stats)
}

func (nc *NotificationController) GetActiveViolations(c *gin.Context) {
	records, err := nc.notificationService.ActiveViolations(c.Request.Context())
	if err != nil {
		logrus.Errorf("Failed to list active violations: %v", err)
		utils.InternalServerErrorResponse(c, "Failed to get active violations")
		return
	}
	utils.SuccessResponse(c, "Active violations retrieved", records)
}
