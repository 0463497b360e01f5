package utils

import (
	"net/http"
	"time"
	"vesselwatch/models"

	"github.com/gin-gonic/gin"
)

// Success responses
func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *models.MetaData) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now(),
	})
}

// AcceptedResponse is used for samples queued to a tracker lane
func AcceptedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusAccepted, models.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// Error responses
func ErrorResponse(c *gin.Context, statusCode int, message string, details interface{}) {
	errorResponse(c, statusCode, getErrorCode(statusCode), message, details)
}

func errorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Message: message,
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

func ValidationErrorResponse(c *gin.Context, validationErrors []ValidationError) {
	errorResponse(c, http.StatusBadRequest, models.ErrCodeValidation, "Validation failed", validationErrors)
}

func NotFoundResponse(c *gin.Context, resource string) {
	errorResponse(c, http.StatusNotFound, models.ErrCodeNotFound, resource+" not found", nil)
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, message, nil)
}

func InternalServerErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	errorResponse(c, http.StatusInternalServerError, models.ErrCodeInternal, message, nil)
}

func ServiceUnavailableResponse(c *gin.Context, service string) {
	errorResponse(c, http.StatusServiceUnavailable, models.ErrCodeExternal, service+" service is currently unavailable", nil)
}

// ServiceErrorResponse renders a ServiceError with its own code and status
func ServiceErrorResponse(c *gin.Context, err ServiceError) {
	status := err.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	var details interface{}
	if err.Details != "" {
		details = err.Details
	}
	errorResponse(c, status, err.Code, err.Message, details)
}

// HandleServiceError renders err from the service layer. Unknown errors are
// reported as 500 without leaking internals.
func HandleServiceError(c *gin.Context, err error) {
	if serviceErr, ok := GetServiceError(err); ok {
		if serviceErr.StatusCode >= http.StatusInternalServerError {
			c.Error(err)
		}
		ServiceErrorResponse(c, serviceErr)
		return
	}
	c.Error(err)
	InternalServerErrorResponse(c, "")
}

func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return models.ErrCodeValidation
	case http.StatusNotFound:
		return models.ErrCodeNotFound
	case http.StatusConflict:
		return models.ErrCodeConflict
	case http.StatusTooManyRequests:
		return models.ErrCodeRateLimit
	case http.StatusServiceUnavailable:
		return models.ErrCodeExternal
	default:
		return models.ErrCodeInternal
	}
}

func CreatePaginationMeta(page, pageSize int, total int64) *models.MetaData {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return &models.MetaData{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
	}
}

// HealthCheckResponse creates a health check response
func HealthCheckResponse(services map[string]string, version, uptime string) models.HealthResponse {
	status := "healthy"
	for _, serviceStatus := range services {
		if serviceStatus != "healthy" && serviceStatus != "disabled" {
			status = "degraded"
			break
		}
	}

	return models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   version,
		Uptime:    uptime,
	}
}
