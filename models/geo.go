package models

// GeoPoint is a WGS84 position in degrees
type GeoPoint struct {
	Latitude  float64 `json:"latitude" bson:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude" yaml:"longitude"`
}

// Geofence is a named circular area. Watched fences have their idle dwell monitored;
// unwatched ones (a vessel's home waters, for example) only report enter and exit.
type Geofence struct {
	Name         string   `json:"name" bson:"name" yaml:"name"`
	Center       GeoPoint `json:"center" bson:"center" yaml:"center"`
	RadiusMeters float64  `json:"radiusMeters" bson:"radiusMeters" yaml:"radius_meters"`
	Watched      bool     `json:"watched" bson:"watched" yaml:"watched"`
}

// GeofenceCheck is the result of testing one point against one fence
type GeofenceCheck struct {
	Geofence       string  `json:"geofence"`
	Watched        bool    `json:"watched"`
	Inside         bool    `json:"inside"`
	DistanceMeters float64 `json:"distanceMeters"` // to the center
	EdgeMeters     float64 `json:"edgeMeters"`     // positive outside, negative inside
	Bearing        string  `json:"bearing"`
}
