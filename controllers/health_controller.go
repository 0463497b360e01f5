package controllers

import (
	"context"
	"net/http"
	"time"
	"vesselwatch/services"
	"vesselwatch/utils"
	"vesselwatch/websocket"
	"vesselwatch/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const Version = "1.0.0"

// HealthDeps are the components reported by the health endpoints. Nil
// members are reported as disabled.
type HealthDeps struct {
	Hub        *websocket.Hub
	Pool       *workers.TrackerWorkerPool
	Heartbeat  *workers.HeartbeatWorker
	Dispatcher *services.EventDispatcher
	Bus        *services.RedisEventBus
	Directory  *services.VesselDirectory
	MQTT       *workers.MQTTIngestWorker
	Cleanup    *workers.CleanupWorker
	Redis      *redis.Client
	Database   func() map[string]interface{}
}

type HealthController struct {
	deps      HealthDeps
	startedAt time.Time
}

func NewHealthController(deps HealthDeps) *HealthController {
	return &HealthController{
		deps:      deps,
		startedAt: time.Now(),
	}
}

// HealthCheck is the liveness probe
func (hc *HealthController) HealthCheck(c *gin.Context) {
	status := hc.serviceStatus(c.Request.Context())
	resp := utils.HealthCheckResponse(status, Version, utils.FormatDuration(time.Since(hc.startedAt)))

	code := http.StatusOK
	if status["trackers"] == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// DetailedHealthCheck adds counters from every pipeline stage
func (hc *HealthController) DetailedHealthCheck(c *gin.Context) {
	details := gin.H{
		"services": hc.serviceStatus(c.Request.Context()),
		"version":  Version,
		"uptime":   utils.FormatDuration(time.Since(hc.startedAt)),
	}

	if hc.deps.Hub != nil {
		details["websocket"] = hc.deps.Hub.GetStats()
	}
	if hc.deps.Pool != nil {
		details["trackers"] = hc.deps.Pool.GetStats()
	}
	if hc.deps.Heartbeat != nil {
		details["heartbeat"] = hc.deps.Heartbeat.GetStats()
	}
	if hc.deps.Dispatcher != nil {
		details["events"] = hc.deps.Dispatcher.Stats()
	}
	if hc.deps.Bus != nil {
		details["eventBus"] = hc.deps.Bus.Stats()
	}
	if hc.deps.Directory != nil {
		details["vessels"] = hc.deps.Directory.Stats()
	}
	if hc.deps.MQTT != nil {
		details["mqtt"] = hc.deps.MQTT.GetStats()
	}
	if hc.deps.Cleanup != nil {
		details["cleanup"] = hc.deps.Cleanup.GetStats()
	}
	if hc.deps.Database != nil {
		details["database"] = hc.deps.Database()
	}

	utils.SuccessResponse(c, "Detailed health", details)
}

func (hc *HealthController) serviceStatus(ctx context.Context) map[string]string {
	status := map[string]string{
		"trackers": "disabled",
		"database": "disabled",
		"redis":    "disabled",
	}

	if hc.deps.Pool != nil {
		status["trackers"] = "unhealthy"
		if hc.deps.Pool.IsRunning() {
			status["trackers"] = "healthy"
		}
	}

	if hc.deps.Database != nil {
		status["database"] = "unhealthy"
		if s, ok := hc.deps.Database()["status"].(string); ok {
			status["database"] = s
		}
	}

	if hc.deps.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		status["redis"] = "healthy"
		if err := hc.deps.Redis.Ping(pingCtx).Err(); err != nil {
			status["redis"] = "unhealthy"
		}
	}

	return status
}

// APIInfo describes the service
func (hc *HealthController) APIInfo(c *gin.Context) {
	utils.SuccessResponse(c, "Vessel boundary monitoring API", gin.H{
		"name":      "vesselwatch",
		"version":   Version,
		"websocket": "/ws",
		"health":    "/health",
	})
}
