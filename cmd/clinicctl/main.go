package main

import (
	"context"
	"fmt"
	"os"

	"clinicflow/internal/ctl"
	mongoMigration "clinicflow/internal/migrations/mongo"
	pgMigration "clinicflow/internal/migrations/postgres"
	"clinicflow/internal/queue/repository"
	"clinicflow/pkg/config"
)

const JobName = "clinicctl"

func main() {
	root := ctl.NewRoot(openStore)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, driver string) (*ctl.Env, error) {
	if driver != "" {
		if err := os.Setenv(config.EnvStoreDriver, driver); err != nil {
			return nil, err
		}
	}

	cfg := config.Load(JobName)
	cfg.SetStore()
	env := &ctl.Env{
		Config: cfg,
		Close:  func() { cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout) },
	}

	switch cfg.StoreDriver {
	case config.StoreMongo:
		env.Sequences = repository.NewMongoSequenceRepository(cfg)
		env.Migrate = func(ctx context.Context) error {
			return mongoMigration.RunMigration(ctx, cfg.Client.Mongo.Database(cfg.MongoDatabaseName), cfg.Log)
		}
	case config.StorePostgres:
		env.Sequences = repository.NewPostgresSequenceRepository(cfg)
		env.Migrate = func(ctx context.Context) error {
			return pgMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log)
		}
	default:
		return nil, fmt.Errorf("store %q keeps no counters outside the service process", cfg.StoreDriver)
	}
	return env, nil
}
