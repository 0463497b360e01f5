package database

import (
	"context"
	"time"
	"vesselwatch/models"
	"vesselwatch/repositories"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Seeder represents a database seeder
type Seeder struct {
	Name        string
	Description string
	Seed        func(*mongo.Database) error
}

var seeders = []Seeder{
	{
		Name:        "demo_vessels",
		Description: "Register demo municipal fishing boats",
		Seed:        seedDemoVessels,
	},
}

// RunSeeders executes all database seeders
func RunSeeders(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seedersCol := db.Collection("seeders")
	count, err := seedersCol.CountDocuments(ctx, bson.M{})
	if err == nil && count > 0 {
		logrus.Info("🌱 Seeders already run, skipping...")
		return nil
	}

	logrus.Info("🌱 Running database seeders...")

	for _, seeder := range seeders {
		logrus.Infof("🔄 Running seeder: %s", seeder.Name)

		if err := seeder.Seed(db); err != nil {
			logrus.Errorf("❌ Seeder %s failed: %v", seeder.Name, err)
			continue
		}

		_, err := seedersCol.InsertOne(ctx, bson.M{
			"name":      seeder.Name,
			"createdAt": time.Now(),
		})
		if err != nil {
			logrus.Warnf("Failed to record seeder %s: %v", seeder.Name, err)
		}

		logrus.Infof("✅ Seeder %s completed", seeder.Name)
	}

	logrus.Info("🌱 All seeders completed")
	return nil
}

// DemoVessels are the boats registered by the demo seeder
func DemoVessels() []models.VesselInfo {
	return []models.VesselInfo{
		{
			TrackerID:    "MFBR-0001",
			MFBRNumber:   "LU-SF-2023-0001",
			BoatName:     "Bangka Uno",
			OwnerName:    "Juan Dela Cruz",
			OwnerContact: "+639171234567",
			HomeArea:     "San Fernando",
		},
		{
			TrackerID:    "MFBR-0002",
			MFBRNumber:   "LU-SF-2023-0002",
			BoatName:     "Maria Clara",
			OwnerName:    "Pedro Santos",
			OwnerContact: "+639181234567",
			HomeArea:     "San Fernando",
		},
		{
			TrackerID:  "MFBR-0003",
			MFBRNumber: "LU-SJ-2024-0017",
			BoatName:   "Tres Marias",
			OwnerName:  "Rosa Ramos",
			HomeArea:   "San Juan",
		},
	}
}

func seedDemoVessels(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := repositories.NewVesselRepository(db)
	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logrus.Infof("Vessel registry already has %d boats", count)
		return nil
	}

	vessels := DemoVessels()
	now := time.Now().UTC()
	for i := range vessels {
		vessels[i].UpdatedAt = now
	}
	return repo.InsertMany(ctx, vessels)
}
