package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinicflow/pkg/config"
	"clinicflow/pkg/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "patient_activities"

// Log is the patient audit trail. Writes are best-effort from the queue's
// point of view.
type Log interface {
	Append(ctx context.Context, a model.Activity) error
	ListByPatient(ctx context.Context, patientRef string, limit int) ([]*model.Activity, error)
}

func prepare(a *model.Activity) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
}

type mongoLog struct {
	collection *mongo.Collection
	opTimeout  time.Duration
}

func NewMongoLog(cfg *config.Config) Log {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLog{
		collection: db.Collection(CollectionName),
		opTimeout:  cfg.StoreOpTimeout,
	}
}

func (l *mongoLog) Append(ctx context.Context, a model.Activity) error {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	prepare(&a)
	if _, err := l.collection.InsertOne(ctx, a); err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (l *mongoLog) ListByPatient(ctx context.Context, patientRef string, limit int) ([]*model.Activity, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := l.collection.Find(ctx, bson.M{"patient_ref": patientRef}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer cursor.Close(ctx)

	activities := []*model.Activity{}
	if err = cursor.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("failed to decode activities: %w", err)
	}
	return activities, nil
}

type postgresLog struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
}

func NewPostgresLog(cfg *config.Config) Log {
	return &postgresLog{pool: cfg.Client.Postgres, opTimeout: cfg.StoreOpTimeout}
}

func (l *postgresLog) Append(ctx context.Context, a model.Activity) error {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	prepare(&a)
	_, err := l.pool.Exec(ctx, `
		INSERT INTO patient_activities (id, patient_ref, entry_id, action, description, actor_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.PatientRef, a.EntryID, a.Action, a.Description, a.ActorRef, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

func (l *postgresLog) ListByPatient(ctx context.Context, patientRef string, limit int) ([]*model.Activity, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx, `
		SELECT id, patient_ref, entry_id, action, description, actor_ref, created_at
		FROM patient_activities WHERE patient_ref = $1
		ORDER BY created_at DESC LIMIT $2`, patientRef, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := []*model.Activity{}
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.PatientRef, &a.EntryID, &a.Action, &a.Description, &a.ActorRef, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, &a)
	}
	return activities, rows.Err()
}

// MemoryLog keeps activities in process memory.
type MemoryLog struct {
	mu         sync.Mutex
	activities []model.Activity
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(ctx context.Context, a model.Activity) error {
	prepare(&a)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activities = append(l.activities, a)
	return nil
}

func (l *MemoryLog) ListByPatient(ctx context.Context, patientRef string, limit int) ([]*model.Activity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []*model.Activity{}
	for i := len(l.activities) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if l.activities[i].PatientRef == patientRef {
			a := l.activities[i]
			out = append(out, &a)
		}
	}
	return out, nil
}
