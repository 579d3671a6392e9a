package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	queueerrors "clinicflow/internal/queue/errors"
	"clinicflow/pkg/config"
	"clinicflow/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoQueueEntryRepository struct {
	collection *mongo.Collection
	opTimeout  time.Duration
}

func NewMongoQueueEntryRepository(cfg *config.Config) QueueEntryRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoQueueEntryRepository{
		collection: db.Collection(QueueEntryCollection),
		opTimeout:  cfg.StoreOpTimeout,
	}
}

var callOrder = bson.D{
	{Key: "priority", Value: -1},
	{Key: "registered_at", Value: 1},
	{Key: "sequence_number", Value: 1},
}

func (r *mongoQueueEntryRepository) Create(ctx context.Context, entry *model.QueueEntry) error {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), ActivePatientIndex) {
			return fmt.Errorf("%w: %s on %s", queueerrors.ErrDuplicateActiveEntry, entry.PatientRef, entry.Date)
		}
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	return nil
}

func (r *mongoQueueEntryRepository) FindByID(ctx context.Context, id string) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	return r.findOne(ctx, bson.M{"_id": id}, nil, id)
}

func (r *mongoQueueEntryRepository) FindActiveByPatient(ctx context.Context, patientRef, date string) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"patient_ref": patientRef, "date": date, "active": true}
	return r.findOne(ctx, filter, nil, patientRef)
}

func (r *mongoQueueEntryRepository) FindNextWaiting(ctx context.Context, date string) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"date": date, "status": model.StatusWaiting}
	entry, err := r.findOne(ctx, filter, options.FindOne().SetSort(callOrder), date)
	if errors.Is(err, queueerrors.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNoWaitingEntry, date)
	}
	return entry, err
}

func (r *mongoQueueEntryRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions, ref string) (*model.QueueEntry, error) {
	if opts == nil {
		opts = options.FindOne()
	}

	var entry model.QueueEntry
	err := r.collection.FindOne(ctx, filter, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}
	return &entry, nil
}

func (r *mongoQueueEntryRepository) ListActive(ctx context.Context, date string) ([]*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	filter := bson.M{"date": date, "active": true}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(callOrder))
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []*model.QueueEntry{}
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode queue entries: %w", err)
	}
	return entries, nil
}

func (r *mongoQueueEntryRepository) UpdateStatus(ctx context.Context, id string, from model.QueueStatus, u model.StatusUpdate) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	set := bson.M{
		"status":            u.Status,
		"active":            u.Status.IsActive(),
		"status_changed_at": u.ChangedAt,
		"status_changed_by": u.ChangedBy,
	}
	if u.CalledAt != nil {
		set["called_at"] = *u.CalledAt
	}
	if u.ConsultingStartedAt != nil {
		set["consulting_started_at"] = *u.ConsultingStartedAt
	}
	if u.CompletedAt != nil {
		set["completed_at"] = *u.CompletedAt
	}
	if u.StatusNote != "" {
		set["status_note"] = u.StatusNote
	}

	return r.conditionalUpdate(ctx, id, from, bson.M{"$set": set})
}

func (r *mongoQueueEntryRepository) UpdatePriority(ctx context.Context, id string, priority int) (*model.QueueEntry, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"priority": priority}}
	return r.conditionalUpdate(ctx, id, model.StatusWaiting, update)
}

// conditionalUpdate applies update only while the entry is still in status
// from, which serialises concurrent transitions on one document.
func (r *mongoQueueEntryRepository) conditionalUpdate(ctx context.Context, id string, from model.QueueStatus, update bson.M) (*model.QueueEntry, error) {
	filter := bson.M{"_id": id, "status": from}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var entry model.QueueEntry
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&entry)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update queue entry: %w", err)
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to check queue entry: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", queueerrors.ErrNotFound, id)
	}
	return nil, fmt.Errorf("%w: %s is no longer %s", queueerrors.ErrStatusConflict, id, from)
}

func (r *mongoQueueEntryRepository) CountByStatus(ctx context.Context, date string) (map[model.QueueStatus]int, error) {
	ctx, cancel := withTimeout(ctx, r.opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"date": date}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate queue entries: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status model.QueueStatus `bson:"_id"`
		Count  int               `bson:"count"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode queue counts: %w", err)
	}

	counts := make(map[model.QueueStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
