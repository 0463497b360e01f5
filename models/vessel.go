package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VesselInfo is owner and registration metadata maintained by the registry.
// It is read-only here and only used to enrich alert text.
type VesselInfo struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty" yaml:"-"`
	TrackerID        string             `json:"trackerId" bson:"trackerId" yaml:"tracker_id"`
	MFBRNumber       string             `json:"mfbrNumber" bson:"mfbrNumber" yaml:"mfbr_number"`
	BoatName         string             `json:"boatName" bson:"boatName" yaml:"boat_name"`
	OwnerName        string             `json:"ownerName" bson:"ownerName" yaml:"owner_name"`
	OwnerContact     string             `json:"ownerContact,omitempty" bson:"ownerContact,omitempty" yaml:"owner_contact"`
	OwnerDeviceToken string             `json:"-" bson:"ownerDeviceToken,omitempty" yaml:"owner_device_token"`
	HomeArea         string             `json:"homeArea" bson:"homeArea" yaml:"home_area"`
	UpdatedAt        time.Time          `json:"updatedAt" bson:"updatedAt" yaml:"-"`
}

// DisplayName is the label used in alert text
func (v *VesselInfo) DisplayName() string {
	if v == nil {
		return ""
	}
	if v.BoatName != "" && v.MFBRNumber != "" {
		return v.BoatName + " (" + v.MFBRNumber + ")"
	}
	if v.BoatName != "" {
		return v.BoatName
	}
	return v.MFBRNumber
}
