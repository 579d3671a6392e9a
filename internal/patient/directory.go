package patient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicflow/pkg/config"
	"clinicflow/pkg/locale"
	"clinicflow/pkg/model"
	"clinicflow/pkg/sanitizer"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const CollectionName = "patients"

var ErrNotFound = errors.New("patient not found")

// Directory resolves the display summary for a patient reference. Patient
// records are owned elsewhere; this is read-only.
type Directory interface {
	Summary(ctx context.Context, ref string) (*model.PatientSummary, error)
}

type mongoDirectory struct {
	collection *mongo.Collection
	opTimeout  time.Duration
	region     string
}

func NewMongoDirectory(cfg *config.Config) Directory {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDirectory{
		collection: db.Collection(CollectionName),
		opTimeout:  cfg.StoreOpTimeout,
		region:     locale.DetectRegion(cfg.ClinicTimezone),
	}
}

func (d *mongoDirectory) Summary(ctx context.Context, ref string) (*model.PatientSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	var summary model.PatientSummary
	err := d.collection.FindOne(ctx, bson.M{"_id": ref}).Decode(&summary)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	summary.Phone = sanitizer.NormalizePhone(summary.Phone, d.region)
	return &summary, nil
}

type postgresDirectory struct {
	pool      *pgxpool.Pool
	opTimeout time.Duration
	region    string
}

func NewPostgresDirectory(cfg *config.Config) Directory {
	return &postgresDirectory{
		pool:      cfg.Client.Postgres,
		opTimeout: cfg.StoreOpTimeout,
		region:    locale.DetectRegion(cfg.ClinicTimezone),
	}
}

func (d *postgresDirectory) Summary(ctx context.Context, ref string) (*model.PatientSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opTimeout)
	defer cancel()

	var s model.PatientSummary
	err := d.pool.QueryRow(ctx, `SELECT ref, name, gender, phone FROM patients WHERE ref = $1`, ref).
		Scan(&s.Ref, &s.Name, &s.Gender, &s.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	s.Phone = sanitizer.NormalizePhone(s.Phone, d.region)
	return &s, nil
}

// StaticDirectory serves summaries from memory.
type StaticDirectory struct {
	mu       sync.RWMutex
	patients map[string]model.PatientSummary
	region   string
}

func NewStaticDirectory(region string) *StaticDirectory {
	return &StaticDirectory{patients: make(map[string]model.PatientSummary), region: region}
}

func (d *StaticDirectory) Put(summary model.PatientSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	summary.Phone = sanitizer.NormalizePhone(summary.Phone, d.region)
	d.patients[summary.Ref] = summary
}

func (d *StaticDirectory) Summary(ctx context.Context, ref string) (*model.PatientSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.patients[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return &s, nil
}
