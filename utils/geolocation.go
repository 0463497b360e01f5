package utils

import (
	"math"
	"vesselwatch/models"
)

const (
	EarthRadiusM = 6371000.0
	DegToRad     = math.Pi / 180.0
	RadToDeg     = 180.0 / math.Pi
)

// DistanceMeters calculates the great-circle distance between two points using the Haversine formula
func DistanceMeters(a, b models.GeoPoint) float64 {
	lat1Rad := a.Latitude * DegToRad
	lon1Rad := a.Longitude * DegToRad
	lat2Rad := b.Latitude * DegToRad
	lon2Rad := b.Longitude * DegToRad

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad

	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusM * c
}

// BearingDegrees calculates the initial bearing from one point to another, in [0, 360)
func BearingDegrees(from, to models.GeoPoint) float64 {
	lat1Rad := from.Latitude * DegToRad
	lat2Rad := to.Latitude * DegToRad
	dlon := (to.Longitude - from.Longitude) * DegToRad

	y := math.Sin(dlon) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dlon)

	bearing := math.Mod(math.Atan2(y, x)*RadToDeg+360, 360)
	if bearing >= 360 {
		bearing = 0
	}
	return bearing
}

// IsInside reports whether the point lies within the fence, boundary included
func IsInside(p models.GeoPoint, fence models.Geofence) bool {
	return DistanceMeters(p, fence.Center) <= fence.RadiusMeters
}

// IsValidCoordinate checks that latitude and longitude are finite and within range
func IsValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// CalculateHeading converts a bearing into a 16-point compass heading
func CalculateHeading(bearing float64) string {
	bearing = math.Mod(bearing+360, 360)

	directions := []string{
		"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
		"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
	}

	index := int(math.Round(bearing/22.5)) % 16
	return directions[index]
}

// OffsetPoint moves a point by distance meters along bearing degrees
func OffsetPoint(from models.GeoPoint, bearing, distance float64) models.GeoPoint {
	lat1 := from.Latitude * DegToRad
	lon1 := from.Longitude * DegToRad
	brng := bearing * DegToRad
	d := distance / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return models.GeoPoint{Latitude: lat2 * RadToDeg, Longitude: lon2 * RadToDeg}
}
