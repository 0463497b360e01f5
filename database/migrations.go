package database

import (
	"context"
	"fmt"
	"time"
	"vesselwatch/repositories"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const migrationsCollection = "migrations"

// Migration is one forward-only schema step
type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
}

// migrationRecord tracks applied migrations
type migrationRecord struct {
	Version   int       `bson:"version"`
	AppliedAt time.Time `bson:"appliedAt"`
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create tracker events collection with indexes",
		Up:          createEventsCollection,
	},
	{
		Version:     2,
		Description: "Create boundary notifications collection with indexes",
		Up:          createNotificationsCollection,
	},
	{
		Version:     3,
		Description: "Create vessels collection with indexes",
		Up:          createVesselsCollection,
	},
	{
		Version:     4,
		Description: "Index report status for the admin report queue",
		Up:          createReportStatusIndex,
	},
	{
		Version:     5,
		Description: "Backfill notification write versions and audit arrays",
		Up:          backfillNotificationVersions,
	},
}

func latestMigrationVersion() int {
	return migrations[len(migrations)-1].Version
}

// RunMigrations executes all pending migrations
func RunMigrations(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrationsCol := db.Collection(migrationsCollection)

	currentVersion := getCurrentMigrationVersion(ctx, migrationsCol)
	logrus.Infof("📋 Current migration version: %d", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logrus.Infof("🔄 Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		_, err := migrationsCol.InsertOne(ctx, migrationRecord{
			Version:   migration.Version,
			AppliedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		logrus.Infof("✅ Migration %d completed", migration.Version)
	}

	return nil
}

func getCurrentMigrationVersion(ctx context.Context, col *mongo.Collection) int {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var record migrationRecord
	err := col.FindOne(ctx, bson.D{}, opts).Decode(&record)
	if err != nil {
		return 0 // No migrations applied yet
	}
	return record.Version
}

func createEventsCollection(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection(repositories.EventCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sequence", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "trackerId", Value: 1}, {Key: "sequence", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	}

	_, err := col.Indexes().CreateMany(ctx, indexes)
	return err
}

func createNotificationsCollection(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection(repositories.NotificationCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sourceEventId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "reportNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "trackerId", Value: 1}, {Key: "toArea", Value: 1}, {Key: "episodeOpen", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
	}

	_, err := col.Indexes().CreateMany(ctx, indexes)
	return err
}

func createVesselsCollection(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection(repositories.VesselCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "trackerId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "mfbrNumber", Value: 1}},
		},
	}

	_, err := col.Indexes().CreateMany(ctx, indexes)
	return err
}

func createReportStatusIndex(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := db.Collection(repositories.NotificationCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "reportStatus", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}

// backfillNotificationVersions prepares records written before versioned
// updates: the version guard needs a number and $push needs an array.
func backfillNotificationVersions(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	col := db.Collection(repositories.NotificationCollection)
	if _, err := col.UpdateMany(ctx,
		bson.M{"version": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"version": 0}},
	); err != nil {
		return err
	}

	_, err := col.UpdateMany(ctx,
		bson.M{"auditTrail": nil},
		bson.M{"$set": bson.M{"auditTrail": bson.A{}}},
	)
	return err
}
