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
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const defaultDatabaseName = "vesselwatch"

var (
	client   *mongo.Client
	database *mongo.Database
)

// monitoredCollections are reported by HealthCheck
var monitoredCollections = []string{
	repositories.EventCollection,
	repositories.NotificationCollection,
	repositories.VesselCollection,
}

// Connect opens the MongoDB pool, applies pending migrations and, when seed
// is true, loads the demo vessel registry.
func Connect(databaseURL string, seed bool) (*mongo.Database, error) {
	dbName, err := databaseName(databaseURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Lanes write events concurrently, so keep a warm pool
	clientOptions := options.Client().
		ApplyURI(databaseURL).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true).
		SetReadPreference(readpref.PrimaryPreferred())

	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database = client.Database(dbName)
	logrus.Infof("✅ Connected to MongoDB (database %s)", dbName)

	if err := RunMigrations(database); err != nil {
		logrus.Warnf("Migration warning: %v", err)
	}

	if seed {
		if err := RunSeeders(database); err != nil {
			logrus.Warnf("Seeder warning: %v", err)
		}
	}

	return database, nil
}

// Disconnect closes the MongoDB connection
func Disconnect() error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logrus.Errorf("Error disconnecting from MongoDB: %v", err)
		return err
	}

	logrus.Info("🔌 Disconnected from MongoDB")
	return nil
}

// databaseName takes the database from the URI path, falling back to
// vesselwatch when the URI names none (or names admin).
func databaseName(uri string) (string, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if cs.Database == "" || cs.Database == "admin" {
		return defaultDatabaseName, nil
	}
	return cs.Database, nil
}

// HealthCheck reports ping latency, the applied schema version and the
// approximate size of each vesselwatch collection.
func HealthCheck() map[string]interface{} {
	result := map[string]interface{}{
		"status": "unhealthy",
	}

	if client == nil || database == nil {
		result["error"] = "database not connected"
		return result
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := time.Now()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		result["error"] = fmt.Sprintf("ping failed: %v", err)
		return result
	}
	result["latencyMs"] = time.Since(started).Milliseconds()

	schema := getCurrentMigrationVersion(ctx, database.Collection(migrationsCollection))
	result["schemaVersion"] = schema
	result["schemaCurrent"] = schema == latestMigrationVersion()

	counts := make(map[string]int64, len(monitoredCollections))
	for _, name := range monitoredCollections {
		n, err := database.Collection(name).EstimatedDocumentCount(ctx)
		if err != nil {
			result["error"] = fmt.Sprintf("count %s failed: %v", name, err)
			return result
		}
		counts[name] = n
	}
	result["collections"] = counts

	open, err := database.Collection(repositories.NotificationCollection).CountDocuments(ctx, bson.M{"episodeOpen": true})
	if err != nil {
		result["error"] = fmt.Sprintf("count open episodes failed: %v", err)
		return result
	}
	result["openEpisodes"] = open

	result["status"] = "healthy"
	return result
}
