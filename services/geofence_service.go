package services

import (
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
)

// GeofenceService answers point queries against the configured fences
type GeofenceService struct {
	fences []models.Geofence
	byName map[string]models.Geofence
}

func NewGeofenceService(fences []models.Geofence) *GeofenceService {
	gs := &GeofenceService{
		fences: append([]models.Geofence(nil), fences...),
		byName: make(map[string]models.Geofence, len(fences)),
	}
	for _, f := range fences {
		gs.byName[f.Name] = f
	}
	return gs
}

func (gs *GeofenceService) List() []models.Geofence {
	return append([]models.Geofence(nil), gs.fences...)
}

func (gs *GeofenceService) Get(name string) (models.Geofence, error) {
	f, ok := gs.byName[name]
	if !ok {
		return models.Geofence{}, utils.NewNotFoundError("Geofence")
	}
	return f, nil
}

// Check tests a point against every fence
func (gs *GeofenceService) Check(lat, lon float64) ([]models.GeofenceCheck, error) {
	if !utils.IsValidCoordinate(lat, lon) {
		return nil, utils.ErrMalformedSample
	}

	point := models.GeoPoint{Latitude: lat, Longitude: lon}
	checks := make([]models.GeofenceCheck, 0, len(gs.fences))
	for _, fence := range gs.fences {
		distance := utils.DistanceMeters(point, fence.Center)
		checks = append(checks, models.GeofenceCheck{
			Geofence:       fence.Name,
			Watched:        fence.Watched,
			Inside:         distance <= fence.RadiusMeters,
			DistanceMeters: utils.RoundToDecimalPlaces(distance, 1),
			EdgeMeters:     utils.RoundToDecimalPlaces(distance-fence.RadiusMeters, 1),
			Bearing:        utils.CalculateHeading(utils.BearingDegrees(point, fence.Center)),
		})
	}

	logrus.Debugf("Geofence check at %.5f,%.5f against %d fences", lat, lon, len(checks))
	return checks, nil
}

// Containing returns the names of the fences that contain the point
func (gs *GeofenceService) Containing(point models.GeoPoint) []string {
	names := []string{}
	for _, fence := range gs.fences {
		if utils.IsInside(point, fence) {
			names = append(names, fence.Name)
		}
	}
	return names
}
