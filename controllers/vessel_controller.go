package controllers

import (
	"vesselwatch/services"
	"vesselwatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type VesselController struct {
	directory *services.VesselDirectory
}

func NewVesselController(directory *services.VesselDirectory) *VesselController {
	return &VesselController{directory: directory}
}

func (vc *VesselController) ListVessels(c *gin.Context) {
	vessels := vc.directory.All()
	utils.SuccessResponse(c, "Vessels retrieved", gin.H{
		"vessels": vessels,
		"count":   len(vessels),
	})
}

func (vc *VesselController) GetVessel(c *gin.Context) {
	vessel, ok := vc.directory.Lookup(c.Request.Context(), c.Param("trackerId"))
	if !ok {
		utils.NotFoundResponse(c, "Vessel")
		return
	}
	utils.SuccessResponse(c, "Vessel retrieved", vessel)
}

// RefreshVessels reloads the registry cache immediately
func (vc *VesselController) RefreshVessels(c *gin.Context) {
	if err := vc.directory.Refresh(c.Request.Context()); err != nil {
		logrus.Warnf("Vessel registry refresh failed: %v", err)
		utils.ServiceUnavailableResponse(c, "Vessel registry")
		return
	}
	utils.SuccessResponse(c, "Vessel registry refreshed", vc.directory.Stats())
}
