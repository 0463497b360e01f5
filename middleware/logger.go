package middleware

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDKey = "request_id"

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Logger            *logrus.Logger
	EnableRequestBody bool
	MaxBodySize       int64
	SkipPaths         []string
	SkipUserAgents    []string
	SlowThreshold     time.Duration
}

// LoggerMiddleware logs one structured line per request and tags it with a
// request ID that is echoed back in X-Request-ID.
func LoggerMiddleware(config LoggerConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = 4096
	}
	if config.SlowThreshold == 0 {
		config.SlowThreshold = 2 * time.Second
	}

	return func(c *gin.Context) {
		requestID := ensureRequestID(c)

		if shouldSkipPath(c.Request.URL.Path, config.SkipPaths) ||
			shouldSkipUserAgent(c.GetHeader("User-Agent"), config.SkipUserAgents) {
			c.Next()
			return
		}

		start := time.Now()

		var requestBody []byte
		if config.EnableRequestBody && c.Request.Body != nil {
			requestBody = captureRequestBody(c, config.MaxBodySize)
		}

		c.Next()

		duration := time.Since(start)
		fields := logrus.Fields{
			"request_id":    requestID,
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"query":         c.Request.URL.RawQuery,
			"status":        c.Writer.Status(),
			"latency_ms":    float64(duration.Nanoseconds()) / 1000000.0,
			"ip":            c.ClientIP(),
			"response_size": c.Writer.Size(),
		}
		if trackerID := c.Param("id"); trackerID != "" {
			fields["resource_id"] = trackerID
		}
		if len(requestBody) > 0 && isTextContent(c.GetHeader("Content-Type")) {
			fields["request_body"] = string(requestBody)
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		logRequest(config.Logger, c.Writer.Status(), duration, config.SlowThreshold, fields)
	}
}

// DefaultLoggerMiddleware skips health probes and keeps bodies out of the log
func DefaultLoggerMiddleware() gin.HandlerFunc {
	return LoggerMiddleware(LoggerConfig{
		Logger:      logrus.StandardLogger(),
		MaxBodySize: 4096,
		SkipPaths: []string{
			"/health",
			"/favicon.ico",
		},
		SkipUserAgents: []string{
			"kube-probe",
			"GoogleHC",
		},
	})
}

// DevelopmentLoggerMiddleware also logs request bodies
func DevelopmentLoggerMiddleware() gin.HandlerFunc {
	return LoggerMiddleware(LoggerConfig{
		Logger:            logrus.StandardLogger(),
		EnableRequestBody: true,
		MaxBodySize:       8192,
		SkipPaths:         []string{"/health"},
	})
}

func ensureRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	c.Set(RequestIDKey, requestID)
	c.Header("X-Request-ID", requestID)
	return requestID
}

func captureRequestBody(c *gin.Context, maxSize int64) []byte {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSize))
	if err != nil {
		return nil
	}
	rest := c.Request.Body
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), rest))
	return body
}

func logRequest(logger *logrus.Logger, statusCode int, duration, slow time.Duration, fields logrus.Fields) {
	message := fmt.Sprintf("%s %s %d %s", fields["method"], fields["path"], statusCode, duration)
	entry := logger.WithFields(fields)

	switch {
	case statusCode >= 500:
		entry.Error(message)
	case statusCode >= 400:
		entry.Warn(message)
	case duration > slow:
		entry.Warn(message + " (slow request)")
	default:
		entry.Info(message)
	}
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

func shouldSkipUserAgent(userAgent string, skipUserAgents []string) bool {
	for _, skipUA := range skipUserAgents {
		if strings.Contains(userAgent, skipUA) {
			return true
		}
	}
	return false
}

func isTextContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "application/json") || strings.HasPrefix(contentType, "text/")
}

// RequestIDMiddleware adds a request ID to every request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ensureRequestID(c)
		c.Next()
	}
}

// ResponseTimeMiddleware adds the X-Response-Time header
func ResponseTimeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &timedWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Next()
	}
}

// timedWriter stamps the elapsed time just before headers are flushed
type timedWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timedWriter) WriteHeader(code int) {
	if !w.stamped {
		w.stamped = true
		ms := math.Ceil(float64(time.Since(w.start).Nanoseconds()) / 1000000.0)
		w.Header().Set("X-Response-Time", fmt.Sprintf("%.0fms", ms))
	}
	w.ResponseWriter.WriteHeader(code)
}
