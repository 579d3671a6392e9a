package mongo

import (
	"context"
	"fmt"

	"clinicflow/internal/activity"
	"clinicflow/internal/migrations/mongo/validators"
	"clinicflow/internal/patient"
	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CallOrderIndex = "call_order"

var (
	QueueEntriesIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "patient_ref", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().
				SetName(repository.ActivePatientIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys: bson.D{{Key: "date", Value: 1}, {Key: "sequence_number", Value: 1}},
			Options: options.Index().
				SetName(repository.DaySequenceIndex).
				SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "date", Value: 1},
				{Key: "status", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "registered_at", Value: 1},
				{Key: "sequence_number", Value: 1},
			},
			Options: options.Index().SetName(CallOrderIndex),
		},
	}

	SequenceCountersIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "locked", Value: 1}, {Key: "lock_expires_at", Value: 1}}},
	}

	ActivitiesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "patient_ref", Value: 1}, {Key: "created_at", Value: -1}}},
	}

	PatientsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}
)

type collectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func collections() map[string]collectionDef {
	return map[string]collectionDef{
		repository.QueueEntryCollection: {
			Indexes:   QueueEntriesIndexes,
			Validator: validators.QueueEntryValidator,
		},
		repository.SequenceCollection: {
			Indexes:   SequenceCountersIndexes,
			Validator: validators.SequenceCounterValidator,
		},
		activity.CollectionName: {
			Indexes:   ActivitiesIndexes,
			Validator: validators.ActivityValidator,
		},
		patient.CollectionName: {
			Indexes:   PatientsIndexes,
			Validator: validators.PatientValidator,
		},
	}
}

// RunMigration creates the clinic collections with their validators and
// indexes. It is safe to run repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for name, def := range collections() {
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All Mongo migrations applied")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
