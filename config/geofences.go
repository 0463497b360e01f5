package config

import (
	"fmt"
	"os"
	"vesselwatch/models"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// AreaFile is the YAML layout of GEOFENCE_FILE
type AreaFile struct {
	Geofences []models.Geofence   `yaml:"geofences"`
	Vessels   []models.VesselInfo `yaml:"vessels"`
}

// DefaultGeofences are the municipal waters monitored out of the box:
// San Fernando as the home fishing area and San Juan as restricted water.
func DefaultGeofences() []models.Geofence {
	return []models.Geofence{
		{
			Name:         "San Fernando",
			Center:       models.GeoPoint{Latitude: 16.6159, Longitude: 120.3176},
			RadiusMeters: 5000,
			Watched:      false,
		},
		{
			Name:         "San Juan",
			Center:       models.GeoPoint{Latitude: 16.6730, Longitude: 120.3447},
			RadiusMeters: 3000,
			Watched:      true,
		},
	}
}

// LoadAreas reads fences and static vessels from path. An empty path
// yields the defaults.
func LoadAreas(path string) (*AreaFile, error) {
	if path == "" {
		return &AreaFile{Geofences: DefaultGeofences()}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geofence file: %w", err)
	}
	return ParseAreas(data)
}

func ParseAreas(data []byte) (*AreaFile, error) {
	var file AreaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse geofence file: %w", err)
	}

	seen := make(map[string]bool)
	for i, f := range file.Geofences {
		if f.Name == "" {
			return nil, fmt.Errorf("geofence %d has no name", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate geofence %q", f.Name)
		}
		seen[f.Name] = true
		if f.RadiusMeters <= 0 {
			return nil, fmt.Errorf("geofence %q needs a positive radius", f.Name)
		}
		if f.Center.Latitude < -90 || f.Center.Latitude > 90 || f.Center.Longitude < -180 || f.Center.Longitude > 180 {
			return nil, fmt.Errorf("geofence %q has an invalid center", f.Name)
		}
	}

	if len(file.Geofences) == 0 {
		logrus.Warn("Geofence file defines no fences, using defaults")
		file.Geofences = DefaultGeofences()
	}
	return &file, nil
}
