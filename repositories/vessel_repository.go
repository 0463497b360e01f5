package repositories

import (
	"context"
	"fmt"
	"vesselwatch/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const VesselCollection = "vessels"

// VesselRepository reads the registry's vessel collection. It never writes to it
// outside of development seeding.
type VesselRepository struct {
	collection *mongo.Collection
}

func NewVesselRepository(db *mongo.Database) *VesselRepository {
	return &VesselRepository{
		collection: db.Collection(VesselCollection),
	}
}

func (vr *VesselRepository) GetAll(ctx context.Context) ([]models.VesselInfo, error) {
	cursor, err := vr.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list vessels: %w", err)
	}
	defer cursor.Close(ctx)

	var vessels []models.VesselInfo
	if err := cursor.All(ctx, &vessels); err != nil {
		return nil, fmt.Errorf("failed to decode vessels: %w", err)
	}
	return vessels, nil
}

func (vr *VesselRepository) Count(ctx context.Context) (int64, error) {
	return vr.collection.CountDocuments(ctx, bson.M{})
}

func (vr *VesselRepository) InsertMany(ctx context.Context, vessels []models.VesselInfo) error {
	if len(vessels) == 0 {
		return nil
	}
	docs := make([]interface{}, len(vessels))
	for i := range vessels {
		docs[i] = vessels[i]
	}
	if _, err := vr.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert vessels: %w", err)
	}
	return nil
}
