// routes/tracker.go
package routes

import (
	"vesselwatch/controllers"

	"github.com/gin-gonic/gin"
)

// SetupTrackerRoutes configures ingest, tracker state, geofence and vessel routes
func SetupTrackerRoutes(router *gin.RouterGroup, trackerController *controllers.TrackerController, vesselController *controllers.VesselController) {
	positions := router.Group("/positions")
	{
		positions.POST("", trackerController.IngestPosition)
		positions.POST("/batch", trackerController.IngestBatch)
	}

	trackers := router.Group("/trackers")
	{
		trackers.GET("", trackerController.ListTrackers)
		trackers.GET("/:id", trackerController.GetTracker)
		trackers.GET("/:id/events", trackerController.GetHistory)
		trackers.PUT("/:id/connectivity", trackerController.SetConnectivity)
	}

	router.GET("/events", trackerController.GetEventsSince)

	geofences := router.Group("/geofences")
	{
		geofences.GET("", trackerController.ListGeofences)
		geofences.GET("/check", trackerController.CheckPosition)
		geofences.GET("/:name", trackerController.GetGeofence)
	}

	vessels := router.Group("/vessels")
	{
		vessels.GET("", vesselController.ListVessels)
		vessels.POST("/refresh", vesselController.RefreshVessels)
		vessels.GET("/:trackerId", vesselController.GetVessel)
	}
}
