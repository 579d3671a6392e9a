//go:build integration

package mongo_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	mongomigration "clinicflow/internal/migrations/mongo"
	"clinicflow/internal/queue/repository"
	"clinicflow/internal/queue/repository/repotest"
	"clinicflow/pkg/client"
	"clinicflow/pkg/config"
	"clinicflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func setupMongo(t *testing.T) *config.Config {
	t.Helper()

	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	cfg := &config.Config{
		MongoURI:          uri,
		MongoDatabaseName: "clinicflow_it_" + strings.ReplaceAll(uuid.NewString()[:8], "-", ""),
		MongoConnTimeout:  10 * time.Second,
		StoreOpTimeout:    5 * time.Second,
		Log:               logger.Discard(),
		Client:            client.NewClient(),
	}
	cfg.SetMongo()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = cfg.Client.Mongo.Database(cfg.MongoDatabaseName).Drop(ctx)
		cfg.Client.GracefulShutdown(cfg.Log, 5*time.Second)
	})
	return cfg
}

func TestRunMigration_Idempotent(t *testing.T) {
	cfg := setupMongo(t)
	ctx := context.Background()
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)

	require.NoError(t, mongomigration.RunMigration(ctx, db, cfg.Log))
	require.NoError(t, mongomigration.RunMigration(ctx, db, cfg.Log))

	cursor, err := db.Collection(repository.QueueEntryCollection).Indexes().List(ctx)
	require.NoError(t, err)
	var indexes []bson.M
	require.NoError(t, cursor.All(ctx, &indexes))

	names := map[string]bool{}
	for _, idx := range indexes {
		names[idx["name"].(string)] = true
	}
	require.True(t, names[repository.ActivePatientIndex])
	require.True(t, names[repository.DaySequenceIndex])
	require.True(t, names[mongomigration.CallOrderIndex])
}

func TestMongoRepositories_Contract(t *testing.T) {
	cfg := setupMongo(t)
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	require.NoError(t, mongomigration.RunMigration(context.Background(), db, cfg.Log))

	t.Run("sequence", func(t *testing.T) {
		repotest.SequenceContract(t, repository.NewMongoSequenceRepository(cfg))
	})
	t.Run("queue entries", func(t *testing.T) {
		repotest.QueueEntryContract(t, repository.NewMongoQueueEntryRepository(cfg), "2025-04-30")
	})
}
