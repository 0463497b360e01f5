package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches service errors by code so sentinel values work with errors.Is
func (e ServiceError) Is(target error) bool {
	t, ok := target.(ServiceError)
	return ok && t.Code == e.Code
}

// NewServiceError creates a new service error
func NewServiceError(code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewServiceErrorWithStatus creates a service error with specific HTTP status
func NewServiceErrorWithStatus(code, message string, statusCode int) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// GetServiceError extracts a ServiceError from an error chain
func GetServiceError(err error) (ServiceError, bool) {
	var serviceErr ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return ServiceError{}, false
}

func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewBadRequestError(message string) error {
	return ServiceError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewConflictError(message string) error {
	return ServiceError{
		Code:       ErrCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewDatabaseError(operation string, cause error) error {
	return ServiceError{
		Code:       ErrCodeDatabase,
		Message:    fmt.Sprintf("Database operation failed: %s", operation),
		Cause:      cause,
		StatusCode: http.StatusInternalServerError,
	}
}

func NewNetworkError(message string, cause error) error {
	return ServiceError{
		Code:       ErrCodeNetwork,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// WrapError attaches a code and message to an underlying error
func WrapError(err error, code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StatusCode: http.StatusInternalServerError,
	}
}

// Error code constants
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeDatabase       = "DATABASE_ERROR"
	ErrCodeNetwork        = "NETWORK_ERROR"
	ErrCodeMalformed      = "MALFORMED_SAMPLE"
	ErrCodeQueueFull      = "TRACKER_QUEUE_FULL"
	ErrCodeNoChanges      = "NO_CHANGES"
	ErrCodeInvalidStatus  = "INVALID_REPORT_STATUS"
	ErrCodeWorkerStopped  = "WORKER_STOPPED"
	ErrCodeExternalNotify = "EXTERNAL_NOTIFY_ERROR"
	ErrCodeStaleRecord    = "STALE_RECORD"
)

// Common error instances
var (
	ErrMalformedSample      = NewServiceErrorWithStatus(ErrCodeMalformed, "Position sample has invalid coordinates", http.StatusBadRequest)
	ErrTrackerQueueFull     = NewServiceErrorWithStatus(ErrCodeQueueFull, "Tracker queue is full", http.StatusServiceUnavailable)
	ErrWorkerStopped        = NewServiceErrorWithStatus(ErrCodeWorkerStopped, "Tracker worker pool is stopped", http.StatusServiceUnavailable)
	ErrNoChanges            = NewServiceErrorWithStatus(ErrCodeNoChanges, "No changes detected", http.StatusOK)
	ErrInvalidReportStatus  = NewServiceErrorWithStatus(ErrCodeInvalidStatus, "Invalid report status", http.StatusBadRequest)
	ErrNotificationNotFound = NewNotFoundError("Notification")
	ErrStaleNotification    = NewServiceErrorWithStatus(ErrCodeStaleRecord, "Notification was changed by another request", http.StatusConflict)
	ErrTrackerNotFound      = NewNotFoundError("Tracker")
)
