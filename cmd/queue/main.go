package main

import (
	"context"

	"clinicflow/internal/activity"
	"clinicflow/internal/notify"
	"clinicflow/internal/patient"
	"clinicflow/internal/queue/allocator"
	"clinicflow/internal/queue/handler"
	"clinicflow/internal/queue/lifecycle"
	"clinicflow/internal/queue/repository"
	"clinicflow/internal/queue/service"
	"clinicflow/internal/queue/validator"
	"clinicflow/pkg/app"
	"clinicflow/pkg/config"
	kafka_config "clinicflow/pkg/kafka/config"
	"clinicflow/pkg/locale"
	"clinicflow/pkg/telemetry"
)

const ServiceName = "clinicflow-queue"

type stores struct {
	sequences  repository.SequenceRepository
	entries    repository.QueueEntryRepository
	activities activity.Log
	directory  patient.Directory
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()

	cfg.Log.Info("Starting queue service", "store", cfg.StoreDriver, "hub", cfg.HubBackend)

	serverApp := app.NewApplication()
	serverApp.OnShutdown(telemetry.Setup(ServiceName, cfg.Log))

	st := initStores(cfg)
	hub, realtime, workers := initHub(cfg, serverApp)
	queueService := initServices(cfg, st, hub)

	serverApp.SetApp(cfg, app.Handlers{
		Health:   handler.NewHealthHandler(cfg.Client, cfg.Log),
		Queue:    handler.NewQueueHandler(queueService, cfg.ClinicLocation(), cfg.Log),
		Realtime: realtime,
	}, workers...)
	serverApp.Run()
}

func initStores(cfg *config.Config) stores {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		return stores{
			sequences:  repository.NewMongoSequenceRepository(cfg),
			entries:    repository.NewMongoQueueEntryRepository(cfg),
			activities: activity.NewMongoLog(cfg),
			directory:  patient.NewMongoDirectory(cfg),
		}
	case config.StorePostgres:
		return stores{
			sequences:  repository.NewPostgresSequenceRepository(cfg),
			entries:    repository.NewPostgresQueueEntryRepository(cfg),
			activities: activity.NewPostgresLog(cfg),
			directory:  patient.NewPostgresDirectory(cfg),
		}
	default:
		cfg.Log.Warn("Using in-memory store, queue state is lost on restart")
		return stores{
			sequences:  repository.NewMemorySequenceRepository(),
			entries:    repository.NewMemoryQueueEntryRepository(),
			activities: activity.NewMemoryLog(),
			directory:  patient.NewStaticDirectory(locale.DetectRegion(cfg.ClinicTimezone)),
		}
	}
}

// initHub builds the display hub. With the kafka backend every instance
// relays the shared topic to its own sockets.
func initHub(cfg *config.Config, serverApp *app.Application) (notify.NotificationHub, *notify.Handler, []app.Worker) {
	local := notify.NewHub(notify.Options{
		PingInterval: cfg.HubPingInterval,
		WriteTimeout: cfg.HubWriteTimeout,
		SendBuffer:   cfg.HubSendBuffer,
	}, cfg.Log)

	if cfg.HubBackend != config.HubBackendKafka {
		return local, notify.NewHandler(local, nil, cfg.Log), []app.Worker{local}
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	kafkaHub, err := notify.NewKafkaHub(local, kafkaCfg, cfg.HubKafkaTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka hub", "error", err)
	}
	serverApp.OnShutdown(func(context.Context) error { return kafkaHub.Close() })

	return kafkaHub, notify.NewHandler(local, kafkaHub, cfg.Log), []app.Worker{local, kafkaHub}
}

func initServices(cfg *config.Config, st stores, hub notify.NotificationHub) service.QueueService {
	alloc := allocator.New(st.sequences, cfg.SequenceStrategy, cfg.SequenceLockTTL, cfg.Log)
	lc := lifecycle.New(st.entries, st.activities, cfg.Log)
	queueValidator := validator.NewQueueValidator(cfg.MinPriority, cfg.MaxPriority)

	queueService := service.NewQueueService(
		st.entries,
		st.sequences,
		alloc,
		lc,
		st.directory,
		hub,
		queueValidator,
		cfg,
	)

	cfg.Log.Info("Queue service initialized", "sequence_strategy", cfg.SequenceStrategy)
	return queueService
}
