package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"
	"vesselwatch/services"
	"vesselwatch/utils"
	"vesselwatch/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

type TrackerController struct {
	pool      *workers.TrackerWorkerPool
	geofences *services.GeofenceService
	eventLog  interfaces.EventLog
	clock     utils.Clock
}

func NewTrackerController(
	pool *workers.TrackerWorkerPool,
	geofences *services.GeofenceService,
	eventLog interfaces.EventLog,
	clock utils.Clock,
) *TrackerController {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &TrackerController{
		pool:      pool,
		geofences: geofences,
		eventLog:  eventLog,
		clock:     clock,
	}
}

// IngestPosition queues one position sample
// @Summary Ingest position
// @Tags Trackers
// @Accept json
// @Produce json
// @Param request body models.PositionRequest true "Position sample"
// @Success 202 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Failure 503 {object} models.APIResponse
// @Router /positions [post]
func (tc *TrackerController) IngestPosition(c *gin.Context) {
	var req models.PositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	sample := tc.toSample(req, "api")
	if err := tc.pool.Submit(sample); err != nil {
		logrus.WithField("tracker_id", sample.TrackerID).Warnf("Position rejected: %v", err)
		utils.HandleServiceError(c, err)
		return
	}

	utils.AcceptedResponse(c, "Position queued", gin.H{
		"trackerId": sample.TrackerID,
		"timestamp": sample.Timestamp,
	})
}

// IngestBatch queues many samples. Samples are submitted in payload order;
// rejected samples do not stop the rest.
func (tc *TrackerController) IngestBatch(c *gin.Context) {
	var req models.PositionBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result := models.IngestResult{}
	for i, r := range req.Samples {
		sample := tc.toSample(r, "api")
		if err := tc.pool.Submit(sample); err != nil {
			result.Rejected++
			code := models.ErrCodeInternal
			if serviceErr, ok := utils.GetServiceError(err); ok {
				code = serviceErr.Code
			}
			result.Errors = append(result.Errors, models.IngestSampleError{
				Index:     i,
				TrackerID: sample.TrackerID,
				Code:      code,
				Message:   err.Error(),
			})
			continue
		}
		result.Accepted++
	}

	if result.Accepted == 0 {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "No samples accepted", result)
		return
	}
	utils.AcceptedResponse(c, "Positions queued", result)
}

func (tc *TrackerController) toSample(req models.PositionRequest, source string) models.PositionSample {
	ts := tc.clock.Now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		ts = req.Timestamp.UTC()
	}
	return models.PositionSample{
		TrackerID:        req.TrackerID,
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		Timestamp:        ts,
		ConnectivityHint: models.ConnectivityStatus(req.ConnectivityHint),
		Source:           source,
	}
}

// ListTrackers returns the live state of every known tracker
func (tc *TrackerController) ListTrackers(c *gin.Context) {
	summaries := tc.pool.Summaries()
	utils.SuccessResponse(c, "Trackers retrieved", gin.H{
		"trackers": summaries,
		"count":    len(summaries),
	})
}

func (tc *TrackerController) GetTracker(c *gin.Context) {
	summary, err := tc.pool.Summary(c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Tracker retrieved", summary)
}

// GetHistory returns the tracker's event timeline, oldest first
func (tc *TrackerController) GetHistory(c *gin.Context) {
	var query models.EventHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}
	if query.Type != "" && !models.EventType(query.Type).Valid() {
		utils.BadRequestResponse(c, "Unknown event type")
		return
	}

	limit := query.Limit
	if limit == 0 {
		limit = 200
	}

	events, err := tc.eventLog.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		logrus.Errorf("Failed to load history for %s: %v", c.Param("id"), err)
		utils.InternalServerErrorResponse(c, "Failed to load tracker history")
		return
	}

	if query.Type != "" {
		filtered := events[:0]
		for _, e := range events {
			if string(e.Type) == query.Type {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	utils.SuccessResponse(c, "History retrieved", gin.H{
		"trackerId": c.Param("id"),
		"events":    events,
		"count":     len(events),
	})
}

// GetEventsSince is the catch-up pull used by consumers that fell behind
func (tc *TrackerController) GetEventsSince(c *gin.Context) {
	after, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || after < 0 {
		utils.BadRequestResponse(c, "after must be a non-negative sequence")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "500"))
	if err != nil || limit < 1 {
		utils.BadRequestResponse(c, "limit must be positive")
		return
	}
	limit = utils.ClampInt(limit, 1, 1000)

	events, err := tc.eventLog.Since(c.Request.Context(), after, limit)
	if err != nil {
		logrus.Errorf("Failed to load events after %d: %v", after, err)
		utils.InternalServerErrorResponse(c, "Failed to load events")
		return
	}

	last := after
	if len(events) > 0 {
		last = events[len(events)-1].Sequence
	}
	utils.SuccessResponse(c, "Events retrieved", gin.H{
		"events":       events,
		"lastSequence": last,
		"more":         len(events) == limit,
	})
}

type connectivityRequest struct {
	Status string `json:"status" binding:"required,connectivity"`
}

// SetConnectivity applies an out-of-band connectivity report, e.g. from the
// tracker gateway. A report for an unseen tracker registers it.
func (tc *TrackerController) SetConnectivity(c *gin.Context) {
	var req connectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := tc.pool.SetConnectivity(c.Param("id"), models.ConnectivityStatus(req.Status)); err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.AcceptedResponse(c, "Connectivity update queued", gin.H{
		"trackerId": c.Param("id"),
		"status":    req.Status,
	})
}

func (tc *TrackerController) ListGeofences(c *gin.Context) {
	utils.SuccessResponse(c, "Geofences retrieved", tc.geofences.List())
}

func (tc *TrackerController) GetGeofence(c *gin.Context) {
	fence, err := tc.geofences.Get(c.Param("name"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Geofence retrieved", fence)
}

// CheckPosition reports containment, distance and bearing for every fence
func (tc *TrackerController) CheckPosition(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lon, lonErr := strconv.ParseFloat(c.Query("lon"), 64)
	if latErr != nil || lonErr != nil {
		utils.BadRequestResponse(c, "lat and lon query parameters are required")
		return
	}

	checks, err := tc.geofences.Check(lat, lon)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	utils.SuccessResponse(c, "Position checked", gin.H{
		"position": models.GeoPoint{Latitude: lat, Longitude: lon},
		"checks":   checks,
		"at":       tc.clock.Now().UTC().Format(time.RFC3339),
	})
}

// respondBindError renders gin binding failures
func respondBindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		utils.ValidationErrorResponse(c, utils.FormatValidationErrors(validationErrs))
		return
	}
	utils.BadRequestResponse(c, "Invalid request body")
}
