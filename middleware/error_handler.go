package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"vesselwatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrorHandler recovers panics and renders errors attached with c.Error
type ErrorHandler struct {
	environment string
	logger      *logrus.Logger
}

func NewErrorHandler(environment string, logger *logrus.Logger) *ErrorHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ErrorHandler{
		environment: environment,
		logger:      logger,
	}
}

// Handle returns the error handling middleware
func (eh *ErrorHandler) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				eh.handlePanic(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			eh.handleGinErrors(c)
		}
	}
}

func (eh *ErrorHandler) handlePanic(c *gin.Context, err interface{}) {
	eh.logger.WithFields(logrus.Fields{
		"panic":      err,
		"stack":      string(debug.Stack()),
		"request_id": c.GetString(RequestIDKey),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
	}).Error("Panic recovered")

	var details interface{}
	if eh.environment == "development" {
		details = gin.H{"panic": err}
	}
	utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", details)
	c.Abort()
}

func (eh *ErrorHandler) handleGinErrors(c *gin.Context) {
	for _, ginErr := range c.Errors {
		eh.logError(c, ginErr.Err)
	}
	eh.processError(c, c.Errors.Last().Err)
}

func (eh *ErrorHandler) logError(c *gin.Context, err error) {
	entry := eh.logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"request_id": c.GetString(RequestIDKey),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"ip":         c.ClientIP(),
	})

	if statusFor(err) >= http.StatusInternalServerError {
		entry.Error("Server error")
	} else {
		entry.Warn("Client error")
	}
}

func (eh *ErrorHandler) processError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		utils.ValidationErrorResponse(c, utils.FormatValidationErrors(validationErrs))
		return
	}

	if serviceErr, ok := utils.GetServiceError(err); ok {
		utils.ServiceErrorResponse(c, serviceErr)
		return
	}

	status := statusFor(err)
	message := http.StatusText(status)
	var details interface{}
	if eh.environment == "development" {
		details = gin.H{"original_error": err.Error()}
	}
	utils.ErrorResponse(c, status, message, details)
}

// statusFor maps an error to the HTTP status it should produce
func statusFor(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound
	case mongo.IsDuplicateKeyError(err):
		return http.StatusConflict
	case mongo.IsTimeout(err):
		return http.StatusGatewayTimeout
	case mongo.IsNetworkError(err):
		return http.StatusServiceUnavailable
	}
	if serviceErr, ok := utils.GetServiceError(err); ok && serviceErr.StatusCode != 0 {
		return serviceErr.StatusCode
	}
	return http.StatusInternalServerError
}
