// routes/routes.go
package routes

import (
	"time"
	"vesselwatch/config"
	"vesselwatch/controllers"
	"vesselwatch/interfaces"
	"vesselwatch/middleware"
	"vesselwatch/services"
	"vesselwatch/utils"
	"vesselwatch/websocket"
	"vesselwatch/workers"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Dependencies are the running components the HTTP layer is built on
type Dependencies struct {
	Config        *config.Config
	Redis         *redis.Client
	Hub           *websocket.Hub
	Pool          *workers.TrackerWorkerPool
	Geofences     *services.GeofenceService
	EventLog      interfaces.EventLog
	Notifications *services.NotificationService
	Directory     *services.VesselDirectory
	Health        controllers.HealthDeps
}

// SetupRoutes initializes all application routes
func SetupRoutes(deps Dependencies) *gin.Engine {
	router := gin.New()
	utils.RegisterBindingValidations()

	controllers := initializeControllers(deps)

	setupGlobalMiddleware(router, deps)

	setupPublicRoutes(router, controllers)
	setupAPIRoutes(router, controllers, deps)
	SetupWebSocketRoutes(router, controllers.WebSocket)

	return router
}

// Controllers initialization
type Controllers struct {
	Tracker      *controllers.TrackerController
	Notification *controllers.NotificationController
	Vessel       *controllers.VesselController
	WebSocket    *controllers.WebSocketController
	Health       *controllers.HealthController
}

func initializeControllers(deps Dependencies) *Controllers {
	return &Controllers{
		Tracker:      controllers.NewTrackerController(deps.Pool, deps.Geofences, deps.EventLog, nil),
		Notification: controllers.NewNotificationController(deps.Notifications),
		Vessel:       controllers.NewVesselController(deps.Directory),
		WebSocket:    controllers.NewWebSocketController(deps.Hub),
		Health:       controllers.NewHealthController(deps.Health),
	}
}

// Global middleware setup
func setupGlobalMiddleware(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	logger := logrus.StandardLogger()

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.NewErrorHandler(cfg.Environment, logger).Handle())
	if cfg.IsProduction() {
		router.Use(middleware.DefaultLoggerMiddleware())
	} else {
		router.Use(middleware.DevelopmentLoggerMiddleware())
	}
	router.Use(middleware.ResponseTimeMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
}

// Public routes
func setupPublicRoutes(router *gin.Engine, controllers *Controllers) {
	router.GET("/", controllers.Health.APIInfo)
	router.GET("/health", controllers.Health.HealthCheck)
	router.GET("/health/detailed", controllers.Health.DetailedHealthCheck)
}

// API routes, rate limited per client IP
func setupAPIRoutes(router *gin.Engine, controllers *Controllers, deps Dependencies) {
	cfg := deps.Config
	window := time.Duration(cfg.RateLimitWindow) * time.Minute

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(deps.Redis, cfg.RateLimitRequest, window))

	SetupTrackerRoutes(api, controllers.Tracker, controllers.Vessel)
	SetupNotificationRoutes(api, controllers.Notification)

	api.GET("/ws/stats", controllers.WebSocket.GetStats)
}
